package transport

import "time"

const (
	defaultDialTimeout          = 10 * time.Second
	defaultBaseBackoff          = 1 * time.Second
	defaultMaxBackoff           = 30 * time.Second
	defaultMaxReconnectAttempts = 5
	defaultPollInterval         = 3 * time.Second
)

// Policy controls how hard the manager fights to keep a socket open before
// degrading to polling.
type Policy struct {
	// DialTimeout bounds a single websocket handshake.
	DialTimeout time.Duration

	// BaseBackoff is the wait before the first reconnect attempt. Each
	// further attempt doubles it, capped at MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// MaxReconnectAttempts is how many consecutive failed dials are
	// tolerated before the run falls back to polling.
	MaxReconnectAttempts int

	// PollInterval is the status poll cadence once degraded.
	PollInterval time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		DialTimeout:          defaultDialTimeout,
		BaseBackoff:          defaultBaseBackoff,
		MaxBackoff:           defaultMaxBackoff,
		MaxReconnectAttempts: defaultMaxReconnectAttempts,
		PollInterval:         defaultPollInterval,
	}
}

func normalizePolicy(in Policy) Policy {
	out := in
	if out.DialTimeout <= 0 {
		out.DialTimeout = defaultDialTimeout
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = defaultBaseBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = defaultMaxBackoff
	}
	if out.MaxBackoff < out.BaseBackoff {
		out.MaxBackoff = out.BaseBackoff
	}
	if out.MaxReconnectAttempts <= 0 {
		out.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if out.PollInterval <= 0 {
		out.PollInterval = defaultPollInterval
	}
	return out
}

func (p Policy) backoffForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}
