package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talentsift/research-sdk-go/client"
	"github.com/talentsift/research-sdk-go/history"
	historyfactory "github.com/talentsift/research-sdk-go/history/factory"
	"github.com/talentsift/research-sdk-go/internal/config"
	"github.com/talentsift/research-sdk-go/observe"
	"github.com/talentsift/research-sdk-go/types"
)

func runSubmit(ctx context.Context, args []string) {
	opts, _ := parseArgs(args)
	req, err := buildSubmitRequest(opts)
	if err != nil {
		log.Fatal(err)
	}

	observer, closeObserver := buildObserver()
	defer closeObserver()
	api := buildClient(opts, observer)

	fmt.Printf("submitting CV %s (%s) for %s\n", req.CV.Name, humanize.Bytes(uint64(len(req.CV.Content))), req.LinkedInURL)
	result, err := api.Submit(ctx, req)
	if err != nil {
		log.Fatalf("submit failed: %v", err)
	}
	fmt.Printf("research run %s accepted (%s)\n", result.RunID, result.Status)

	if !opts.watch {
		return
	}
	watchRun(ctx, api, observer, result.RunID, req.LinkedInURL)
}

func runWatch(ctx context.Context, args []string) {
	opts, positional := parseArgs(args)
	runID := requireRunID(positional, "watch")

	observer, closeObserver := buildObserver()
	defer closeObserver()
	api := buildClient(opts, observer)
	watchRun(ctx, api, observer, runID, "")
}

// watchRun tracks one run to its terminal state, printing a line per visible
// change. Interrupting the watch leaves the run running server-side.
func watchRun(ctx context.Context, api *client.Client, observer observe.Sink, runID, linkedinURL string) {
	components, cleanup := buildTracker(ctx, api, observer)
	defer cleanup()

	if _, err := components.store.StartRun(ctx, runID, linkedinURL); err != nil {
		log.Fatalf("failed to track run: %v", err)
	}
	watcherID, updates := components.store.Subscribe(64)
	defer components.store.Unsubscribe(watcherID)

	if err := components.manager.Attach(runID, components.store); err != nil {
		log.Fatalf("failed to attach transport: %v", err)
	}
	fmt.Printf("watching run %s\n", runID)

	lastLine := ""
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("stopped watching; run %s continues server-side\n", runID)
			return
		case run, ok := <-updates:
			if !ok {
				return
			}
			if line := formatRunLine(run); line != lastLine {
				fmt.Println(line)
				lastLine = line
			}
			if run.Status.Terminal() {
				printOutcome(run)
				return
			}
		}
	}
}

func runStatus(ctx context.Context, args []string) {
	opts, positional := parseArgs(args)
	runID := requireRunID(positional, "status")

	observer, closeObserver := buildObserver()
	defer closeObserver()
	api := buildClient(opts, observer)

	snap, err := api.Status(ctx, runID)
	if err != nil {
		log.Fatalf("status failed: %v", err)
	}
	fmt.Printf("run %s: %s", snap.RunID, snap.Status)
	if snap.CurrentStage != "" {
		fmt.Printf(" (%s)", snap.CurrentStage)
	}
	fmt.Printf(" %.1f%%\n", snap.OverallProgress)
	if snap.EstimatedSecondsRemain != nil {
		fmt.Printf("estimated time remaining: %s\n", humanizeSeconds(*snap.EstimatedSecondsRemain))
	}
	for _, stage := range snap.Stages {
		fmt.Printf("  %-20s %-12s %5.1f%%\n", stage.ID, stage.Status, stage.Progress)
	}
	if snap.Error != nil {
		fmt.Printf("error: %s\n", snap.Error.Message)
	}
}

func runResults(ctx context.Context, args []string) {
	opts, positional := parseArgs(args)
	runID := requireRunID(positional, "results")

	observer, closeObserver := buildObserver()
	defer closeObserver()
	api := buildClient(opts, observer)

	raw, err := api.Results(ctx, runID)
	if err != nil {
		log.Fatalf("results failed: %v", err)
	}
	fmt.Println(indentJSON(raw))
}

func runCancel(ctx context.Context, args []string) {
	opts, positional := parseArgs(args)
	runID := requireRunID(positional, "cancel")

	observer, closeObserver := buildObserver()
	defer closeObserver()
	api := buildClient(opts, observer)

	if err := api.Cancel(ctx, runID); err != nil {
		log.Fatalf("cancel failed: %v", err)
	}
	fmt.Printf("run %s cancellation requested\n", runID)
}

func runHealth(ctx context.Context, args []string) {
	opts, _ := parseArgs(args)

	observer, closeObserver := buildObserver()
	defer closeObserver()
	api := buildClient(opts, observer)

	if err := api.Health(ctx); err != nil {
		log.Fatalf("api unhealthy: %v", err)
	}
	fmt.Printf("%s is healthy\n", api.BaseURL())
}

func runHistory(ctx context.Context, args []string) {
	opts, _ := parseArgs(args)

	archive, err := historyfactory.FromEnv(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer closeHistory(archive)

	limit := opts.limit
	if limit <= 0 {
		limit = config.ParseIntEnv("RESEARCH_HISTORY_LIMIT", history.DefaultLimit)
	}
	records, err := archive.List(ctx, limit)
	if err != nil {
		log.Fatalf("history list failed: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("no archived runs")
		return
	}
	for _, record := range records {
		completed := "-"
		if record.CompletedAt != nil {
			completed = humanize.Time(*record.CompletedAt)
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%5.1f%%\t%s\t%s",
			record.RunID,
			record.SubmittedAt.UTC().Format(time.RFC3339),
			record.Status,
			record.Progress,
			completed,
			record.LinkedInURL,
		)
		if record.Error != "" {
			line += "\t" + record.Error
		}
		fmt.Println(line)
	}
}

func buildSubmitRequest(opts cliOptions) (client.SubmitRequest, error) {
	if opts.linkedinURL == "" || opts.cvPath == "" {
		return client.SubmitRequest{}, errors.New("usage: submit --linkedin=URL --cv=FILE [--jd=TEXT | --jd-file=FILE] [--watch]")
	}
	cv, err := readDocument(opts.cvPath)
	if err != nil {
		return client.SubmitRequest{}, err
	}
	req := client.SubmitRequest{
		LinkedInURL:    opts.linkedinURL,
		CV:             cv,
		JobDescription: opts.jobText,
	}
	if opts.jobFilePath != "" {
		jd, err := readDocument(opts.jobFilePath)
		if err != nil {
			return client.SubmitRequest{}, err
		}
		req.JobDescriptionFile = &jd
	}
	return req, nil
}

func readDocument(path string) (client.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return client.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return client.Document{Name: filepath.Base(path), Content: content}, nil
}

func requireRunID(positional []string, command string) string {
	if len(positional) < 1 || strings.TrimSpace(positional[0]) == "" {
		log.Fatalf("usage: %s [--api=URL] <run-id>", command)
	}
	return strings.TrimSpace(positional[0])
}

func formatRunLine(run types.Run) string {
	stage := run.CurrentStageID
	if stage == "" {
		stage = "-"
	}
	line := fmt.Sprintf("[%5.1f%%] %-10s %s", run.OverallProgress, run.Status, stage)
	if run.EstimatedSecondsRemain != nil && !run.Status.Terminal() {
		line += fmt.Sprintf(" (%s)", humanizeSeconds(*run.EstimatedSecondsRemain))
	}
	return line
}

func printOutcome(run types.Run) {
	switch run.Status {
	case types.RunCompleted:
		elapsed := ""
		if run.CompletedAt != nil {
			elapsed = " in " + strings.TrimSpace(humanize.RelTime(run.SubmittedAt, *run.CompletedAt, "", ""))
		}
		fmt.Printf("run %s completed%s\n", run.ID, elapsed)
		if len(run.Result) > 0 {
			fmt.Println(indentJSON(run.Result))
		}
	case types.RunFailed:
		if run.Error != nil {
			fmt.Printf("run %s failed: %s\n", run.ID, run.Error.Message)
		} else {
			fmt.Printf("run %s failed\n", run.ID)
		}
	case types.RunCancelled:
		fmt.Printf("run %s cancelled\n", run.ID)
	}
}

func humanizeSeconds(seconds int) string {
	target := time.Now().Add(time.Duration(seconds) * time.Second)
	return strings.TrimSpace(humanize.RelTime(time.Now(), target, "left", ""))
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
