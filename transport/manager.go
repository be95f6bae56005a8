// Package transport keeps one live delivery channel per research run:
// websocket push while the socket holds, reconnects with backoff when it
// drops, and status polling as the last resort. Every frame, pushed or
// synthesized from a poll, reaches the consumer through the same handler.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talentsift/research-sdk-go/client"
	"github.com/talentsift/research-sdk-go/observe"
	"github.com/talentsift/research-sdk-go/types"
)

// ErrAlreadyAttached is returned when a run already has a live stream. A run
// carries at most one transport at a time.
var ErrAlreadyAttached = errors.New("transport already attached to run")

// Handler consumes envelopes in arrival order. Implementations must tolerate
// redelivery: the polling fallback resends the full run picture every tick.
type Handler interface {
	HandleEnvelope(ctx context.Context, env types.Envelope) error
}

type HandlerFunc func(ctx context.Context, env types.Envelope) error

func (f HandlerFunc) HandleEnvelope(ctx context.Context, env types.Envelope) error {
	return f(ctx, env)
}

type Manager struct {
	api      *client.Client
	policy   Policy
	observer observe.Sink
	dialer   *websocket.Dialer

	mu   sync.Mutex
	runs map[string]*runStream
}

type Option func(*Manager)

func WithPolicy(policy Policy) Option {
	return func(m *Manager) { m.policy = normalizePolicy(policy) }
}

func WithObserver(sink observe.Sink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.observer = sink
		}
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(m *Manager) {
		if dialer != nil {
			m.dialer = dialer
		}
	}
}

func New(api *client.Client, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, fmt.Errorf("research API client is required")
	}
	m := &Manager{
		api:      api,
		policy:   DefaultPolicy(),
		observer: observe.NoopSink{},
		dialer:   websocket.DefaultDialer,
		runs:     make(map[string]*runStream),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type runStream struct {
	runID   string
	handler Handler
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	state State
}

func (s *runStream) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

func (s *runStream) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attach starts streaming frames for a run. The stream runs until the run
// reaches a terminal frame, Detach or Close is called, and cleans itself up
// afterwards. Attaching a run that already has a stream fails with
// ErrAlreadyAttached.
func (m *Manager) Attach(runID string, handler Handler) error {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	m.mu.Lock()
	if _, ok := m.runs[runID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, runID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &runStream{
		runID:   runID,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateConnecting,
	}
	m.runs[runID] = s
	m.mu.Unlock()

	go m.streamRun(ctx, s)
	return nil
}

// Detach stops a run's stream and waits for it to unwind. Unknown runs are a
// no-op. Never call this from inside a Handler; the handler runs on the
// stream goroutine Detach waits for.
func (m *Manager) Detach(runID string) {
	m.mu.Lock()
	s, ok := m.runs[runID]
	if ok {
		delete(m.runs, runID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	<-s.done
}

// State reports where a run's stream sits. Runs without a stream report
// StateClosed.
func (m *Manager) State(runID string) State {
	m.mu.Lock()
	s, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return s.currentState()
}

// Close detaches every run and waits for their streams.
func (m *Manager) Close() {
	m.mu.Lock()
	streams := make([]*runStream, 0, len(m.runs))
	for id, s := range m.runs {
		delete(m.runs, id)
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		s.cancel()
		<-s.done
	}
}

func (m *Manager) forget(runID string) {
	m.mu.Lock()
	delete(m.runs, runID)
	m.mu.Unlock()
}

type readResult int

const (
	readCancelled readResult = iota
	readTerminal
	readCleanClose
	readFailure
)

func (m *Manager) streamRun(ctx context.Context, s *runStream) {
	defer close(s.done)
	defer m.forget(s.runID)

	m.transition(ctx, s, StateConnecting, "dialing")

	failures := 0
	for {
		conn, err := m.dial(ctx, s.runID)
		if err != nil {
			if ctx.Err() != nil {
				m.transition(ctx, s, StateClosed, "stream stopped")
				return
			}
			log.Printf("[transport] run %s: dial failed: %v", s.runID, err)
			failures++
			if !m.retryOrPoll(ctx, s, failures) {
				return
			}
			continue
		}

		failures = 0
		m.transition(ctx, s, StateOpen, "websocket open")

		result := m.readLoop(ctx, s, conn)
		conn.Close()

		switch result {
		case readTerminal:
			m.transition(ctx, s, StateClosed, "run finished")
			return
		case readCancelled:
			m.transition(ctx, s, StateClosed, "stream stopped")
			return
		case readCleanClose:
			// The server hung up politely without a terminal frame.
			// Finish the run over polling rather than hammering a
			// socket the server no longer wants.
			m.pollRun(ctx, s)
			return
		default:
			failures++
			if !m.retryOrPoll(ctx, s, failures) {
				return
			}
		}
	}
}

// retryOrPoll waits out the backoff for the given consecutive failure count.
// It returns false when dialing should stop, either because the stream was
// cancelled or because the attempt budget ran out and polling took over.
func (m *Manager) retryOrPoll(ctx context.Context, s *runStream, failures int) bool {
	if failures > m.policy.MaxReconnectAttempts {
		log.Printf("[transport] run %s: websocket unavailable after %d attempts, falling back to polling",
			s.runID, m.policy.MaxReconnectAttempts)
		m.pollRun(ctx, s)
		return false
	}
	backoff := m.policy.backoffForAttempt(failures)
	m.transition(ctx, s, StateReconnecting,
		fmt.Sprintf("reconnect attempt %d/%d in %s", failures, m.policy.MaxReconnectAttempts, backoff))
	select {
	case <-ctx.Done():
		m.transition(ctx, s, StateClosed, "stream stopped")
		return false
	case <-time.After(backoff):
		return true
	}
}

func (m *Manager) readLoop(ctx context.Context, s *runStream, conn *websocket.Conn) readResult {
	// ReadMessage only unblocks when the connection dies, so kill it when
	// the stream context does.
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopped:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return readCancelled
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return readCleanClose
			}
			return readFailure
		}

		env, err := types.ParseEnvelope(raw)
		if err != nil {
			// Malformed frames are logged and dropped; the stream
			// itself stays healthy.
			log.Printf("[transport] run %s: dropping malformed frame: %v", s.runID, err)
			continue
		}
		if env.RunID != s.runID {
			log.Printf("[transport] run %s: dropping frame addressed to run %s", s.runID, env.RunID)
			continue
		}

		if err := s.handler.HandleEnvelope(ctx, env); err != nil {
			log.Printf("[transport] run %s: handler rejected %s frame: %v", s.runID, env.Type, err)
		}
		if env.Type == types.MessageCompletion || env.Type == types.MessageError {
			return readTerminal
		}
	}
}

func (m *Manager) dial(ctx context.Context, runID string) (*websocket.Conn, error) {
	wsURL, err := websocketURL(m.api.BaseURL(), runID)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, m.policy.DialTimeout)
	defer cancel()

	conn, resp, err := m.dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func websocketURL(base, runID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in base URL", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/research/" + runID
	return u.String(), nil
}

func (m *Manager) transition(ctx context.Context, s *runStream, next State, message string) {
	s.setState(next)

	event := observe.Event{
		Kind:    observe.KindTransport,
		RunID:   s.runID,
		Name:    string(next),
		Message: message,
		Status:  observe.StatusChanged,
	}
	switch next {
	case StateOpen:
		event.Status = observe.StatusStarted
	case StateClosed:
		event.Status = observe.StatusCompleted
	}
	event.Normalize()
	_ = m.observer.Emit(ctx, event)
}
