// Package history persists finished research runs. Only run metadata is
// kept; stage detail and result payloads stay on the server and can be
// re-fetched by run id.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/talentsift/research-sdk-go/types"
)

// ErrNotFound is returned when a run id has no archived record.
var ErrNotFound = errors.New("research run not found in history")

// DefaultLimit is how many finished runs the archive keeps unless configured
// otherwise.
const DefaultLimit = 10

// Record is the archived footprint of one finished run.
type Record struct {
	RunID       string          `json:"runId"`
	LinkedInURL string          `json:"linkedinUrl,omitempty"`
	Status      types.RunStatus `json:"status"`
	Progress    float64         `json:"progress"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// FromRun strips a run down to its archive footprint.
func FromRun(run types.Run) Record {
	record := Record{
		RunID:       run.ID,
		LinkedInURL: run.LinkedInURL,
		Status:      run.Status,
		Progress:    run.OverallProgress,
		SubmittedAt: run.SubmittedAt,
	}
	if run.Error != nil {
		record.Error = run.Error.Message
	}
	if run.CompletedAt != nil {
		completed := *run.CompletedAt
		record.CompletedAt = &completed
	}
	return record
}

// Store is the archive backend. List returns newest first.
type Store interface {
	Save(ctx context.Context, record Record) error
	Load(ctx context.Context, runID string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Delete(ctx context.Context, runID string) error
	// Trim drops the oldest records beyond keep.
	Trim(ctx context.Context, keep int) error
	Close() error
}
