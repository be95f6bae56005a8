package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/talentsift/research-sdk-go/client"
	"github.com/talentsift/research-sdk-go/types"
)

// pollRun drives a run to completion over REST status snapshots. Each
// snapshot is translated into the frames the socket would have carried, so
// the consumer sees one event shape regardless of transport. Poll misses are
// transient; the next tick retries.
func (m *Manager) pollRun(ctx context.Context, s *runStream) {
	m.transition(ctx, s, StatePolling, fmt.Sprintf("polling every %s", m.policy.PollInterval))

	ticker := time.NewTicker(m.policy.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.transition(ctx, s, StateClosed, "stream stopped")
			return
		case <-ticker.C:
		}

		snapshot, err := m.api.Status(ctx, s.runID)
		if err != nil {
			if ctx.Err() != nil {
				m.transition(ctx, s, StateClosed, "stream stopped")
				return
			}
			log.Printf("[transport] run %s: status poll failed: %v", s.runID, err)
			continue
		}

		for _, env := range m.envelopesFromSnapshot(ctx, snapshot) {
			if err := s.handler.HandleEnvelope(ctx, env); err != nil {
				log.Printf("[transport] run %s: handler rejected %s frame: %v", s.runID, env.Type, err)
			}
		}
		if snapshot.Status.Terminal() {
			m.transition(ctx, s, StateClosed, "run finished")
			return
		}
	}
}

// envelopesFromSnapshot rebuilds the frame stream a snapshot implies. The
// consumer's monotonic rules make redelivery harmless, so each poll carries
// the full picture: one stage frame per started stage, the overall progress,
// and the terminal frame once the run is done. Completed runs cost an extra
// round trip for the results payload the socket would have pushed.
func (m *Manager) envelopesFromSnapshot(ctx context.Context, snap client.StatusSnapshot) []types.Envelope {
	frames := make([]types.Envelope, 0, len(snap.Stages)+2)

	for _, stage := range snap.Stages {
		payload := types.StageUpdatePayload{Stage: stage.ID, Status: stage.Status}
		switch stage.Status {
		case types.StageInProgress:
			progress := stage.Progress
			payload.Progress = &progress
		case types.StageCompleted, types.StageError:
		default:
			// Pending stages carry no information.
			continue
		}
		if env, err := types.NewEnvelope(types.MessageStageUpdate, snap.RunID, payload); err == nil {
			frames = append(frames, env)
		}
	}

	if snap.OverallProgress > 0 && !snap.Status.Terminal() {
		payload := types.ProgressUpdatePayload{Progress: snap.OverallProgress}
		if env, err := types.NewEnvelope(types.MessageProgressUpdate, snap.RunID, payload); err == nil {
			frames = append(frames, env)
		}
	}

	switch snap.Status {
	case types.RunCompleted:
		results, err := m.api.Results(ctx, snap.RunID)
		if err != nil {
			log.Printf("[transport] run %s: results fetch failed: %v", snap.RunID, err)
			results = nil
		}
		payload := types.CompletionPayload{Status: string(types.RunCompleted), Results: results}
		if env, err := types.NewEnvelope(types.MessageCompletion, snap.RunID, payload); err == nil {
			frames = append(frames, env)
		}
	case types.RunFailed:
		payload := types.ErrorPayload{Error: "research run failed"}
		if snap.Error != nil {
			payload.Kind = snap.Error.Kind
			if snap.Error.Message != "" {
				payload.Error = snap.Error.Message
			}
			payload.Stage = snap.Error.Stage
			payload.Retryable = snap.Error.Retryable
		}
		if env, err := types.NewEnvelope(types.MessageError, snap.RunID, payload); err == nil {
			frames = append(frames, env)
		}
	case types.RunCancelled:
		payload := types.ErrorPayload{Status: string(types.RunCancelled), Error: "research run cancelled"}
		if env, err := types.NewEnvelope(types.MessageError, snap.RunID, payload); err == nil {
			frames = append(frames, env)
		}
	}

	return frames
}
