package types

import "fmt"

type ErrorKind string

const (
	ErrorValidation   ErrorKind = "validation"
	ErrorNetwork      ErrorKind = "network"
	ErrorServer       ErrorKind = "server"
	ErrorTimeout      ErrorKind = "timeout"
	ErrorAgentFailure ErrorKind = "agent_failure"
)

// RunError is the structured failure attached to a run. Kind drives retry
// decisions; Stage is set when the failure is attributable to one stage.
type RunError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	Retryable bool      `json:"retryable"`
}

func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s error in stage %q: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func NewRunError(kind ErrorKind, message string) *RunError {
	return &RunError{Kind: normalizeKind(kind), Message: message, Retryable: kind == ErrorNetwork || kind == ErrorTimeout}
}

func normalizeKind(kind ErrorKind) ErrorKind {
	switch kind {
	case ErrorValidation, ErrorNetwork, ErrorServer, ErrorTimeout, ErrorAgentFailure:
		return kind
	default:
		return ErrorAgentFailure
	}
}
