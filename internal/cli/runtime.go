package cli

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/talentsift/research-sdk-go/client"
	"github.com/talentsift/research-sdk-go/history"
	historyfactory "github.com/talentsift/research-sdk-go/history/factory"
	"github.com/talentsift/research-sdk-go/internal/config"
	"github.com/talentsift/research-sdk-go/observe"
	observesqlite "github.com/talentsift/research-sdk-go/observe/store/sqlite"
	"github.com/talentsift/research-sdk-go/pipeline"
	"github.com/talentsift/research-sdk-go/session"
	"github.com/talentsift/research-sdk-go/transport"
)

type trackerComponents struct {
	api     *client.Client
	manager *transport.Manager
	store   *session.Store
	archive history.Store
}

func buildClient(opts cliOptions, observer observe.Sink) *client.Client {
	baseURL := opts.apiURL
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("RESEARCH_API_URL"))
	}
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	api, err := client.New(baseURL, client.WithObserver(observer))
	if err != nil {
		log.Fatal(err)
	}
	return api
}

// buildTracker assembles the watch pipeline: transport feeding the session
// store, finished runs archived to history. History failures degrade to
// in-memory tracking rather than aborting the command.
func buildTracker(ctx context.Context, api *client.Client, observer observe.Sink) (*trackerComponents, func()) {
	plan, err := pipeline.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	archive, err := historyfactory.FromEnv(ctx)
	if err != nil {
		log.Printf("history unavailable: %v", err)
		archive = nil
	}

	manager, err := transport.New(api, transport.WithObserver(observer))
	if err != nil {
		closeHistory(archive)
		log.Fatal(err)
	}

	store, err := session.New(plan,
		session.WithHistory(archive),
		session.WithHistoryLimit(config.ParseIntEnv("RESEARCH_HISTORY_LIMIT", history.DefaultLimit)),
		session.WithCanceller(api),
		session.WithDetacher(manager),
		session.WithObserver(observer),
	)
	if err != nil {
		manager.Close()
		closeHistory(archive)
		log.Fatal(err)
	}

	components := &trackerComponents{api: api, manager: manager, store: store, archive: archive}
	return components, func() {
		manager.Close()
		store.Close()
		closeHistory(archive)
	}
}

func buildObserver() (observe.Sink, func()) {
	if !parseBoolEnv("RESEARCH_OBSERVE_ENABLED", true) {
		return observe.NoopSink{}, func() {}
	}
	dbPath := strings.TrimSpace(os.Getenv("RESEARCH_TRACE_DB_PATH"))
	if dbPath == "" {
		dbPath = "./.research-track/trace.db"
	}
	traceStore, err := observesqlite.New(dbPath)
	if err != nil {
		log.Printf("observer disabled: %v", err)
		return observe.NoopSink{}, func() {}
	}
	async := observe.NewAsyncSink(observe.SinkFunc(func(ctx context.Context, event observe.Event) error {
		return traceStore.SaveEvent(ctx, event)
	}), 256)
	return async, func() {
		async.Close()
		_ = traceStore.Close()
	}
}
