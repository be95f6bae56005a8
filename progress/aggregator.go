// Package progress folds wire frames into run snapshots. The aggregator is
// pure state-in/state-out; ownership and locking live in the session store.
package progress

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/research-sdk-go/pipeline"
	"github.com/talentsift/research-sdk-go/types"
)

const (
	// The aggregate saturates just below completion; only a completion
	// frame yields exactly 100.
	maxActiveProgress = 99.9

	maxMessages = 200
)

// Outcome reports what Apply did with a frame. Frames that were not applied
// are dropped by the caller with Reason logged; the snapshot is unchanged.
type Outcome struct {
	Applied  bool
	Terminal bool
	Reason   string
}

type Aggregator struct {
	plan pipeline.Plan
}

func New(plan pipeline.Plan) (*Aggregator, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stage plan: %w", err)
	}
	return &Aggregator{plan: plan}, nil
}

func (a *Aggregator) Plan() pipeline.Plan { return a.plan }

// NewRun builds the initial snapshot for a freshly accepted submission.
func (a *Aggregator) NewRun(id, linkedinURL string, submittedAt time.Time) types.Run {
	total := a.plan.TotalHintSeconds()
	return types.Run{
		ID:                     id,
		LinkedInURL:            linkedinURL,
		Status:                 types.RunSubmitted,
		Stages:                 a.plan.Materialize(),
		SubmittedAt:            submittedAt.UTC(),
		EstimatedSecondsRemain: &total,
	}
}

// Apply folds one frame into the snapshot and returns the updated copy.
// Terminal snapshots never change; the overall progress never decreases.
func (a *Aggregator) Apply(run types.Run, env types.Envelope) (types.Run, Outcome) {
	if run.Status.Terminal() {
		return run, Outcome{Reason: fmt.Sprintf("run already %s", run.Status)}
	}
	run = run.Clone()

	switch env.Type {
	case types.MessageStageUpdate:
		return a.applyStageUpdate(run, env)
	case types.MessageProgressUpdate:
		return a.applyProgressUpdate(run, env)
	case types.MessageCompletion:
		return a.applyCompletion(run, env)
	case types.MessageError:
		return a.applyError(run, env)
	case types.MessageAgentStatus:
		return a.applyAgentStatus(run, env)
	default:
		return run, Outcome{Reason: fmt.Sprintf("unsupported frame type %q", env.Type)}
	}
}

func (a *Aggregator) applyStageUpdate(run types.Run, env types.Envelope) (types.Run, Outcome) {
	payload, err := env.StageUpdate()
	if err != nil {
		return run, Outcome{Reason: err.Error()}
	}
	idx := run.StageByID(payload.Stage)
	if idx < 0 {
		return run, Outcome{Reason: fmt.Sprintf("unknown stage %q", payload.Stage)}
	}

	now := time.Now().UTC()
	switch payload.Status {
	case types.StageInProgress:
		// A stage starting is authoritative about its neighbours: everything
		// before it is done, everything after it has not run yet.
		for j := 0; j < idx; j++ {
			if run.Stages[j].Status != types.StageCompleted && run.Stages[j].Status != types.StageError {
				run.Stages[j].Status = types.StageCompleted
				run.Stages[j].Progress = 100
				if run.Stages[j].CompletedAt == nil {
					run.Stages[j].CompletedAt = &now
				}
			}
		}
		for j := idx + 1; j < len(run.Stages); j++ {
			if run.Stages[j].Status != types.StagePending {
				run.Stages[j].Status = types.StagePending
				run.Stages[j].Progress = 0
				run.Stages[j].StartedAt = nil
				run.Stages[j].CompletedAt = nil
			}
		}
		run.Stages[idx].Status = types.StageInProgress
		if run.Stages[idx].StartedAt == nil {
			run.Stages[idx].StartedAt = &now
		}
		run.Stages[idx].CompletedAt = nil
		if payload.Progress != nil {
			run.Stages[idx].Progress = clamp(*payload.Progress, 0, 100)
		}

	case types.StageCompleted:
		for j := 0; j < idx; j++ {
			if run.Stages[j].Status != types.StageCompleted && run.Stages[j].Status != types.StageError {
				run.Stages[j].Status = types.StageCompleted
				run.Stages[j].Progress = 100
				if run.Stages[j].CompletedAt == nil {
					run.Stages[j].CompletedAt = &now
				}
			}
		}
		run.Stages[idx].Status = types.StageCompleted
		run.Stages[idx].Progress = 100
		if run.Stages[idx].CompletedAt == nil {
			run.Stages[idx].CompletedAt = &now
		}

	case types.StageError:
		run.Stages[idx].Status = types.StageError
		if run.Stages[idx].CompletedAt == nil {
			run.Stages[idx].CompletedAt = &now
		}

	case types.StagePending:
		run.Stages[idx].Status = types.StagePending
		run.Stages[idx].Progress = 0
		run.Stages[idx].StartedAt = nil
		run.Stages[idx].CompletedAt = nil

	default:
		return run, Outcome{Reason: fmt.Sprintf("unknown stage status %q", payload.Status)}
	}

	a.markActive(&run, now)
	run.CurrentStageID = currentStage(run.Stages)
	a.refresh(&run)
	return run, Outcome{Applied: true}
}

// currentStage is the in-progress stage when one exists, otherwise the last
// stage that has run.
func currentStage(stages []types.Stage) string {
	last := ""
	for _, stage := range stages {
		switch stage.Status {
		case types.StageInProgress:
			return stage.ID
		case types.StageCompleted, types.StageError:
			last = stage.ID
		}
	}
	return last
}

func (a *Aggregator) applyProgressUpdate(run types.Run, env types.Envelope) (types.Run, Outcome) {
	payload, err := env.ProgressUpdate()
	if err != nil {
		return run, Outcome{Reason: err.Error()}
	}
	value := clamp(payload.Progress, 0, maxActiveProgress)
	if value < run.OverallProgress {
		return run, Outcome{Reason: fmt.Sprintf("stale progress %.1f below current %.1f", value, run.OverallProgress)}
	}

	a.markActive(&run, time.Now().UTC())
	run.OverallProgress = value
	run.EstimatedSecondsRemain = a.estimate(run)
	return run, Outcome{Applied: true}
}

func (a *Aggregator) applyCompletion(run types.Run, env types.Envelope) (types.Run, Outcome) {
	payload, err := env.Completion()
	if err != nil {
		return run, Outcome{Reason: err.Error()}
	}

	now := time.Now().UTC()
	for i := range run.Stages {
		if run.Stages[i].Status == types.StageError {
			continue
		}
		run.Stages[i].Status = types.StageCompleted
		run.Stages[i].Progress = 100
		if run.Stages[i].CompletedAt == nil {
			run.Stages[i].CompletedAt = &now
		}
	}
	run.Status = types.RunCompleted
	run.OverallProgress = 100
	run.EstimatedSecondsRemain = nil
	run.CompletedAt = &now
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	if len(run.Stages) > 0 {
		run.CurrentStageID = run.Stages[len(run.Stages)-1].ID
	}
	if len(payload.Results) > 0 && string(payload.Results) != "null" {
		run.Result = append(run.Result[:0], payload.Results...)
	}
	return run, Outcome{Applied: true, Terminal: true}
}

func (a *Aggregator) applyError(run types.Run, env types.Envelope) (types.Run, Outcome) {
	payload, err := env.ErrorInfo()
	if err != nil {
		return run, Outcome{Reason: err.Error()}
	}

	now := time.Now().UTC()

	// Cancellation arrives on the error channel with an explicit status.
	if types.RunStatus(payload.Status) == types.RunCancelled {
		run.Status = types.RunCancelled
		run.EstimatedSecondsRemain = nil
		run.CompletedAt = &now
		text := payload.Error
		if text == "" {
			text = "research run cancelled"
		}
		a.appendMessage(&run, types.StatusMessage{Text: text, Severity: types.SeverityWarn}, now)
		return run, Outcome{Applied: true, Terminal: true}
	}

	kind := payload.Kind
	if kind == "" {
		kind = types.ErrorAgentFailure
	}
	run.Status = types.RunFailed
	run.Error = &types.RunError{
		Kind:      kind,
		Message:   payload.Error,
		Stage:     payload.Stage,
		Retryable: payload.Retryable,
	}
	if idx := run.StageByID(payload.Stage); idx >= 0 {
		run.Stages[idx].Status = types.StageError
		if run.Stages[idx].CompletedAt == nil {
			run.Stages[idx].CompletedAt = &now
		}
	}
	run.EstimatedSecondsRemain = nil
	run.CompletedAt = &now
	a.appendMessage(&run, types.StatusMessage{
		Stage:    payload.Stage,
		Text:     payload.Error,
		Severity: types.SeverityError,
	}, now)
	return run, Outcome{Applied: true, Terminal: true}
}

func (a *Aggregator) applyAgentStatus(run types.Run, env types.Envelope) (types.Run, Outcome) {
	payload, err := env.AgentStatus()
	if err != nil {
		return run, Outcome{Reason: err.Error()}
	}

	text := payload.Message
	if text == "" {
		text = payload.CurrentTask
	}
	if text == "" {
		return run, Outcome{Reason: "agent_status frame carries no message"}
	}
	stage := ""
	if a.plan.Index(payload.Agent) >= 0 {
		stage = payload.Agent
	}
	a.appendMessage(&run, types.StatusMessage{
		Stage:    stage,
		Agent:    payload.Agent,
		Text:     text,
		Severity: types.SeverityInfo,
	}, time.Now().UTC())
	return run, Outcome{Applied: true}
}

// markActive promotes a submitted run to processing on first pipeline signal.
func (a *Aggregator) markActive(run *types.Run, now time.Time) {
	if run.Status == types.RunSubmitted || run.Status == "" {
		run.Status = types.RunProcessing
	}
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
}

// refresh recomputes the aggregate and the estimate after a stage mutation.
// The displayed aggregate only moves forward even when the stage composition
// itself moved backwards.
func (a *Aggregator) refresh(run *types.Run) {
	candidate := a.composite(run.Stages)
	if candidate > run.OverallProgress {
		run.OverallProgress = candidate
	}
	run.EstimatedSecondsRemain = a.estimate(*run)
}

func (a *Aggregator) composite(stages []types.Stage) float64 {
	if len(stages) == 0 {
		return 0
	}
	share := 100.0 / float64(len(stages))
	total := 0.0
	for _, stage := range stages {
		switch stage.Status {
		case types.StageCompleted, types.StageError:
			// Errored stages are consumed: the pipeline has moved past them.
			total += share
		case types.StageInProgress:
			total += share * clamp(stage.Progress, 0, 100) / 100
		}
	}
	return clamp(total, 0, maxActiveProgress)
}

func (a *Aggregator) estimate(run types.Run) *int {
	if run.Status.Terminal() {
		return nil
	}
	remaining := 0.0
	for _, stage := range run.Stages {
		switch stage.Status {
		case types.StagePending:
			remaining += float64(stage.HintSeconds)
		case types.StageInProgress:
			remaining += float64(stage.HintSeconds) * (100 - clamp(stage.Progress, 0, 100)) / 100
		}
	}
	seconds := int(math.Ceil(remaining))
	if seconds < 0 {
		seconds = 0
	}
	return &seconds
}

func (a *Aggregator) appendMessage(run *types.Run, msg types.StatusMessage, now time.Time) {
	msg.ID = uuid.NewString()
	msg.Timestamp = now
	run.Messages = append(run.Messages, msg)
	if len(run.Messages) > maxMessages {
		run.Messages = run.Messages[len(run.Messages)-maxMessages:]
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
