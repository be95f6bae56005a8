package cli

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/talentsift/research-sdk-go/history"
	"github.com/talentsift/research-sdk-go/internal/config"
)

func parseArgs(args []string) (cliOptions, []string) {
	opts := cliOptions{}
	positional := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--linkedin="):
			opts.linkedinURL = strings.TrimSpace(strings.TrimPrefix(arg, "--linkedin="))
		case strings.HasPrefix(arg, "--cv="):
			opts.cvPath = strings.TrimSpace(strings.TrimPrefix(arg, "--cv="))
		case strings.HasPrefix(arg, "--jd="):
			opts.jobText = strings.TrimSpace(strings.TrimPrefix(arg, "--jd="))
		case strings.HasPrefix(arg, "--jd-file="):
			opts.jobFilePath = strings.TrimSpace(strings.TrimPrefix(arg, "--jd-file="))
		case strings.HasPrefix(arg, "--api="):
			opts.apiURL = strings.TrimSpace(strings.TrimPrefix(arg, "--api="))
		case strings.HasPrefix(arg, "--limit="):
			opts.limit = parseIntArg(strings.TrimPrefix(arg, "--limit="))
		case arg == "--watch":
			opts.watch = true
		default:
			positional = append(positional, arg)
		}
	}
	return opts, positional
}

func parseIntArg(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseBoolEnv(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return config.ParseBoolString(value, fallback)
}

func closeHistory(store history.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Printf("history store close failed: %v", err)
	}
}
