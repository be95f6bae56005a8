package cli

const defaultAPIURL = "http://localhost:8000"

type cliOptions struct {
	linkedinURL string
	cvPath      string
	jobText     string
	jobFilePath string
	apiURL      string
	limit       int
	watch       bool
}
