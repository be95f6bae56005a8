// Package store persists observability events so a run's timeline can be
// inspected after the fact.
package store

import (
	"context"
	"time"

	"github.com/talentsift/research-sdk-go/observe"
)

type ListQuery struct {
	Limit  int
	Offset int
}

type MetricsQuery struct {
	Since *time.Time
}

type MetricsSummary struct {
	RunsStarted     int64 `json:"runsStarted"`
	RunsCompleted   int64 `json:"runsCompleted"`
	RunsFailed      int64 `json:"runsFailed"`
	SubmitsAccepted int64 `json:"submitsAccepted"`
	SubmitFailures  int64 `json:"submitFailures"`
	StagesCompleted int64 `json:"stagesCompleted"`
	StageFailures   int64 `json:"stageFailures"`
}

type Store interface {
	SaveEvent(ctx context.Context, event observe.Event) error
	ListEventsByRun(ctx context.Context, runID string, query ListQuery) ([]observe.Event, error)
	ListEventsByKind(ctx context.Context, kind observe.Kind, query ListQuery) ([]observe.Event, error)
	AggregateMetrics(ctx context.Context, query MetricsQuery) (MetricsSummary, error)
	Close() error
}
