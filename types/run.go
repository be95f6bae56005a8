package types

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunSubmitted  RunStatus = "submitted"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageError      StageStatus = "error"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Run is the locally tracked view of one research run. All mutation goes
// through the session store; everything handed out is a deep copy.
type Run struct {
	ID                     string          `json:"runId"`
	LinkedInURL            string          `json:"linkedinUrl,omitempty"`
	Status                 RunStatus       `json:"status"`
	Stages                 []Stage         `json:"stages"`
	CurrentStageID         string          `json:"currentStageId,omitempty"`
	OverallProgress        float64         `json:"overallProgress"`
	EstimatedSecondsRemain *int            `json:"estimatedSecondsRemain,omitempty"`
	Error                  *RunError       `json:"error,omitempty"`
	Result                 json.RawMessage `json:"result,omitempty"`
	Messages               []StatusMessage `json:"messages,omitempty"`
	SubmittedAt            time.Time       `json:"submittedAt"`
	StartedAt              *time.Time      `json:"startedAt,omitempty"`
	CompletedAt            *time.Time      `json:"completedAt,omitempty"`
}

type Stage struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Status      StageStatus `json:"status"`
	Progress    float64     `json:"progress"`
	HintSeconds int         `json:"hintSeconds,omitempty"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// StatusMessage is one line of the human-readable run log. Messages are
// observational and never feed back into progress or status.
type StatusMessage struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Text      string    `json:"text"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (r Run) Clone() Run {
	out := r
	if r.Stages != nil {
		out.Stages = make([]Stage, len(r.Stages))
		copy(out.Stages, r.Stages)
		for i := range out.Stages {
			out.Stages[i].StartedAt = cloneTime(r.Stages[i].StartedAt)
			out.Stages[i].CompletedAt = cloneTime(r.Stages[i].CompletedAt)
		}
	}
	if r.Messages != nil {
		out.Messages = make([]StatusMessage, len(r.Messages))
		copy(out.Messages, r.Messages)
	}
	if r.Result != nil {
		out.Result = make(json.RawMessage, len(r.Result))
		copy(out.Result, r.Result)
	}
	if r.Error != nil {
		errCopy := *r.Error
		out.Error = &errCopy
	}
	out.EstimatedSecondsRemain = cloneInt(r.EstimatedSecondsRemain)
	out.StartedAt = cloneTime(r.StartedAt)
	out.CompletedAt = cloneTime(r.CompletedAt)
	return out
}

// StageByID returns the index of the stage with the given id, or -1.
func (r Run) StageByID(id string) int {
	for i := range r.Stages {
		if r.Stages[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	copied := *n
	return &copied
}
