package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type MessageType string

const (
	MessageStageUpdate    MessageType = "stage_update"
	MessageProgressUpdate MessageType = "progress_update"
	MessageCompletion     MessageType = "completion"
	MessageError          MessageType = "error"
	MessageAgentStatus    MessageType = "agent_status"
)

// Envelope is the push-channel message frame. Timestamp is carried as the
// server sends it (a stringified unix float) and is never used for ordering;
// arrival order governs.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RunID     string          `json:"runId"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ParseEnvelope decodes and validates one wire frame. Callers drop the frame
// on error and keep reading.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (e Envelope) Validate() error {
	switch e.Type {
	case MessageStageUpdate, MessageProgressUpdate, MessageCompletion, MessageError, MessageAgentStatus:
	case "":
		return fmt.Errorf("envelope is missing type")
	default:
		return fmt.Errorf("unknown envelope type %q", e.Type)
	}
	if strings.TrimSpace(e.RunID) == "" {
		return fmt.Errorf("envelope is missing runId")
	}
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("envelope is missing data")
	}
	return nil
}

// NewEnvelope builds a frame around the given payload. Used for frames
// synthesized from poll responses and in tests.
func NewEnvelope(t MessageType, runID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal envelope payload: %w", err)
	}
	return Envelope{
		Type:      t,
		RunID:     runID,
		Data:      raw,
		Timestamp: strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', 6, 64),
	}, nil
}

type StageUpdatePayload struct {
	Stage    string      `json:"stage"`
	Status   StageStatus `json:"status"`
	Progress *float64    `json:"progress,omitempty"`
}

type ProgressUpdatePayload struct {
	Progress float64 `json:"progress"`
}

type CompletionPayload struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results"`
}

type ErrorPayload struct {
	Status    string    `json:"status,omitempty"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Error     string    `json:"error"`
	Stage     string    `json:"stage,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
}

type AgentStatusPayload struct {
	Agent       string `json:"agent"`
	CurrentTask string `json:"currentTask,omitempty"`
	Message     string `json:"message"`
}

func (e Envelope) StageUpdate() (StageUpdatePayload, error) {
	var p StageUpdatePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return StageUpdatePayload{}, fmt.Errorf("failed to decode stage_update payload: %w", err)
	}
	if strings.TrimSpace(p.Stage) == "" {
		return StageUpdatePayload{}, fmt.Errorf("stage_update payload is missing stage")
	}
	return p, nil
}

func (e Envelope) ProgressUpdate() (ProgressUpdatePayload, error) {
	var p ProgressUpdatePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return ProgressUpdatePayload{}, fmt.Errorf("failed to decode progress_update payload: %w", err)
	}
	return p, nil
}

func (e Envelope) Completion() (CompletionPayload, error) {
	var p CompletionPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return CompletionPayload{}, fmt.Errorf("failed to decode completion payload: %w", err)
	}
	return p, nil
}

func (e Envelope) ErrorInfo() (ErrorPayload, error) {
	var p ErrorPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return ErrorPayload{}, fmt.Errorf("failed to decode error payload: %w", err)
	}
	return p, nil
}

func (e Envelope) AgentStatus() (AgentStatusPayload, error) {
	var p AgentStatusPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return AgentStatusPayload{}, fmt.Errorf("failed to decode agent_status payload: %w", err)
	}
	return p, nil
}
