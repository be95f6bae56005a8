package observe

import "time"

type Kind string

type Status string

const (
	KindRun       Kind = "run"
	KindStage     Kind = "stage"
	KindTransport Kind = "transport"
	KindSubmit    Kind = "submit"
	KindHistory   Kind = "history"
	KindCustom    Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusChanged   Status = "changed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is the internal observability record. Sinks receive every run, stage,
// and transport transition the tracker makes.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	RunID      string         `json:"runId,omitempty"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status,omitempty"`
	Stage      string         `json:"stage,omitempty"`
	Name       string         `json:"name,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Progress   float64        `json:"progress,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
