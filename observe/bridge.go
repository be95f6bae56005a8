package observe

import (
	"github.com/talentsift/research-sdk-go/types"
)

// FromEnvelope converts one wire frame into an observability event. Payload
// decode failures degrade to a bare event rather than dropping the signal.
func FromEnvelope(in types.Envelope) Event {
	e := Event{
		RunID: in.RunID,
		Name:  string(in.Type),
		Attributes: map[string]any{
			"messageType": string(in.Type),
		},
	}

	switch in.Type {
	case types.MessageStageUpdate:
		e.Kind = KindStage
		if payload, err := in.StageUpdate(); err == nil {
			e.Stage = payload.Stage
			if payload.Progress != nil {
				e.Progress = *payload.Progress
			}
			switch payload.Status {
			case types.StageInProgress:
				e.Status = StatusStarted
			case types.StageCompleted:
				e.Status = StatusCompleted
			case types.StageError:
				e.Status = StatusFailed
			default:
				e.Status = StatusChanged
			}
		} else {
			e.Status = StatusChanged
			e.Error = err.Error()
		}
	case types.MessageProgressUpdate:
		e.Kind = KindRun
		e.Status = StatusChanged
		if payload, err := in.ProgressUpdate(); err == nil {
			e.Progress = payload.Progress
		}
	case types.MessageCompletion:
		e.Kind = KindRun
		e.Status = StatusCompleted
	case types.MessageError:
		e.Kind = KindRun
		e.Status = StatusFailed
		if payload, err := in.ErrorInfo(); err == nil {
			e.Error = payload.Error
			e.Stage = payload.Stage
			if payload.Kind != "" {
				e.Attributes["errorKind"] = string(payload.Kind)
			}
			// Cancellations ride the error channel with an explicit status.
			if payload.Status != "" {
				e.Attributes["runStatus"] = payload.Status
			}
		}
	case types.MessageAgentStatus:
		e.Kind = KindCustom
		e.Status = StatusChanged
		if payload, err := in.AgentStatus(); err == nil {
			e.Message = payload.Message
			e.Attributes["agent"] = payload.Agent
			if payload.CurrentTask != "" {
				e.Attributes["currentTask"] = payload.CurrentTask
			}
		}
	default:
		e.Kind = KindCustom
		e.Status = StatusChanged
	}

	e.Normalize()
	return e
}
