// Package session owns the run the process is tracking. Transport frames
// funnel through the progress aggregator here, watchers get immutable run
// snapshots, and finished runs are archived to history.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/talentsift/research-sdk-go/history"
	"github.com/talentsift/research-sdk-go/observe"
	"github.com/talentsift/research-sdk-go/pipeline"
	"github.com/talentsift/research-sdk-go/progress"
	"github.com/talentsift/research-sdk-go/types"
)

var (
	// ErrNoActiveRun is returned when an operation needs a tracked run and
	// there is none.
	ErrNoActiveRun = errors.New("no active research run")

	// ErrRunActive is returned by StartRun while a previous run is still
	// in flight.
	ErrRunActive = errors.New("a research run is already being tracked")
)

const (
	defaultWatcherBuffer = 16
	archiveTimeout       = 5 * time.Second
	serverCancelTimeout  = 10 * time.Second
)

// Detacher releases a run's transport stream. *transport.Manager satisfies
// this.
type Detacher interface {
	Detach(runID string)
}

// Canceller asks the server to stop a run. *client.Client satisfies this.
type Canceller interface {
	Cancel(ctx context.Context, runID string) error
}

type Store struct {
	agg          *progress.Aggregator
	historyLimit int
	archive      history.Store
	canceller    Canceller
	detacher     Detacher
	observer     observe.Sink

	mu      sync.Mutex
	current *types.Run

	finishWG sync.WaitGroup

	watchMu     sync.RWMutex
	nextWatcher int
	watchers    map[int]chan types.Run
}

type Option func(*Store)

// WithHistory archives finished runs into the given store. Without it runs
// vanish when replaced.
func WithHistory(archive history.Store) Option {
	return func(s *Store) { s.archive = archive }
}

func WithHistoryLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

func WithCanceller(canceller Canceller) Option {
	return func(s *Store) { s.canceller = canceller }
}

func WithDetacher(detacher Detacher) Option {
	return func(s *Store) { s.detacher = detacher }
}

func WithObserver(sink observe.Sink) Option {
	return func(s *Store) {
		if sink != nil {
			s.observer = sink
		}
	}
}

func New(plan pipeline.Plan, opts ...Option) (*Store, error) {
	agg, err := progress.New(plan)
	if err != nil {
		return nil, fmt.Errorf("invalid stage plan: %w", err)
	}
	s := &Store{
		agg:          agg,
		historyLimit: history.DefaultLimit,
		observer:     observe.NoopSink{},
		watchers:     map[int]chan types.Run{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Plan() pipeline.Plan { return s.agg.Plan() }

// StartRun begins tracking a freshly submitted run. One run is tracked at a
// time; a terminal run is replaced, a live one must finish or be evicted
// first.
func (s *Store) StartRun(ctx context.Context, runID, linkedinURL string) (types.Run, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return types.Run{}, fmt.Errorf("run id is required")
	}

	s.mu.Lock()
	if s.current != nil && !s.current.Status.Terminal() {
		activeID := s.current.ID
		s.mu.Unlock()
		return types.Run{}, fmt.Errorf("%w: %s", ErrRunActive, activeID)
	}
	run := s.agg.NewRun(runID, linkedinURL, time.Now().UTC())
	s.current = &run
	snapshot := run.Clone()
	s.mu.Unlock()

	s.emit(ctx, observe.Event{Kind: observe.KindRun, Status: observe.StatusStarted, RunID: runID})
	s.publish(snapshot)
	return snapshot, nil
}

// HandleEnvelope feeds one transport frame into the tracked run. This is the
// only path live run state changes through, whichever transport delivered
// the frame. Dropped frames (late arrivals after a terminal state, stale
// progress, undecodable payloads) are not errors; the polling fallback
// redelivers constantly and the aggregator is built for that.
func (s *Store) HandleEnvelope(ctx context.Context, env types.Envelope) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoActiveRun
	}
	if env.RunID != s.current.ID {
		trackedID := s.current.ID
		s.mu.Unlock()
		return fmt.Errorf("frame addressed to run %s while tracking %s", env.RunID, trackedID)
	}
	next, outcome := s.agg.Apply(*s.current, env)
	if !outcome.Applied {
		s.mu.Unlock()
		return nil
	}
	s.current = &next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.emit(ctx, observe.FromEnvelope(env))
	s.publish(snapshot)

	if outcome.Terminal {
		s.finishRun(snapshot)
	}
	return nil
}

// CancelRun flips the tracked run to cancelled immediately and tells the
// server afterwards, best effort. Cancelling an already finished run returns
// its final state and does nothing else.
func (s *Store) CancelRun(ctx context.Context, reason string) (types.Run, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return types.Run{}, ErrNoActiveRun
	}
	run := s.current.Clone()
	s.mu.Unlock()

	if run.Status.Terminal() {
		return run, nil
	}

	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by user"
	}
	env, err := types.NewEnvelope(types.MessageError, run.ID, types.ErrorPayload{
		Status: string(types.RunCancelled),
		Error:  reason,
	})
	if err != nil {
		return types.Run{}, err
	}
	if err := s.HandleEnvelope(ctx, env); err != nil {
		return types.Run{}, err
	}

	// The server call rides behind local state so the caller never waits
	// on it. A failure only means the server finishes work nobody reads.
	if s.canceller != nil {
		runID := run.ID
		go func() {
			cancelCtx, cancel := context.WithTimeout(context.Background(), serverCancelTimeout)
			defer cancel()
			if err := s.canceller.Cancel(cancelCtx, runID); err != nil {
				log.Printf("[session] server cancel for run %s failed: %v", runID, err)
			}
		}()
	}

	s.mu.Lock()
	out := s.current.Clone()
	s.mu.Unlock()
	return out, nil
}

// CurrentRun returns a snapshot of the tracked run, terminal or not.
func (s *Store) CurrentRun() (types.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return types.Run{}, false
	}
	return s.current.Clone(), true
}

// EvictRun forgets the tracked run without touching history. A still-live
// run is detached from its transport first.
func (s *Store) EvictRun() {
	s.mu.Lock()
	run := s.current
	s.current = nil
	s.mu.Unlock()

	if run != nil && !run.Status.Terminal() && s.detacher != nil {
		s.detacher.Detach(run.ID)
	}
}

// History lists archived runs, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]history.Record, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.List(ctx, limit)
}

// Subscribe registers a watcher for run snapshots. Channels are buffered;
// a slow watcher misses intermediate snapshots rather than blocking
// delivery.
func (s *Store) Subscribe(buffer int) (int, <-chan types.Run) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if buffer <= 0 {
		buffer = defaultWatcherBuffer
	}
	id := s.nextWatcher
	s.nextWatcher++
	ch := make(chan types.Run, buffer)
	s.watchers[id] = ch
	return id, ch
}

func (s *Store) Unsubscribe(id int) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if ch, ok := s.watchers[id]; ok {
		delete(s.watchers, id)
		close(ch)
	}
}

// Close waits for any in-flight archive write and drops all watchers. The
// tracked run, if any, is left as is.
func (s *Store) Close() {
	s.finishWG.Wait()
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
}

func (s *Store) publish(run types.Run) {
	s.watchMu.RLock()
	defer s.watchMu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- run.Clone():
		default:
		}
	}
}

// finishRun archives a terminal run and releases its transport. Both happen
// off the caller's goroutine: the terminal frame usually arrives on the
// transport read loop, which Detach must not be called from.
func (s *Store) finishRun(run types.Run) {
	s.finishWG.Add(1)
	go func() {
		defer s.finishWG.Done()
		if s.detacher != nil {
			s.detacher.Detach(run.ID)
		}
		s.archiveRun(run)
	}()
}

func (s *Store) archiveRun(run types.Run) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := s.archive.Save(ctx, history.FromRun(run)); err != nil {
		log.Printf("[session] failed to archive run %s: %v", run.ID, err)
		return
	}
	if err := s.archive.Trim(ctx, s.historyLimit); err != nil {
		log.Printf("[session] failed to trim history: %v", err)
	}
	s.emit(ctx, observe.Event{
		Kind:    observe.KindHistory,
		Status:  observe.StatusCompleted,
		RunID:   run.ID,
		Message: "run archived",
	})
}

func (s *Store) emit(ctx context.Context, event observe.Event) {
	if s.observer == nil {
		return
	}
	event.Normalize()
	_ = s.observer.Emit(ctx, event)
}
