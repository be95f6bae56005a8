package cli

import (
	"context"
	"fmt"
	"strings"
)

func Run(ctx context.Context, args []string) {
	if len(args) < 1 {
		printUsage()
		return
	}

	switch strings.TrimSpace(args[0]) {
	case "submit":
		runSubmit(ctx, args[1:])
	case "watch":
		runWatch(ctx, args[1:])
	case "status":
		runStatus(ctx, args[1:])
	case "results":
		runResults(ctx, args[1:])
	case "cancel":
		runCancel(ctx, args[1:])
	case "history":
		runHistory(ctx, args[1:])
	case "health":
		runHealth(ctx, args[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("unknown command %q\n\n", args[0])
		printUsage()
	}
}
