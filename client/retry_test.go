package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talentsift/research-sdk-go/types"
)

func TestBackoffSchedule(t *testing.T) {
	policy := DefaultRetryPolicy()
	expect := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range expect {
		if got := policy.backoffForAttempt(i + 1); got != want {
			t.Errorf("attempt %d: expected %s, got %s", i+1, want, got)
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	policy := normalizeRetryPolicy(RetryPolicy{MaxAttempts: 8, BaseBackoff: time.Second, MaxBackoff: 10 * time.Second})
	if got := policy.backoffForAttempt(6); got != 10*time.Second {
		t.Errorf("expected backoff capped at 10s, got %s", got)
	}
}

func TestNormalizeRetryPolicyDefaultsZeroValues(t *testing.T) {
	policy := normalizeRetryPolicy(RetryPolicy{})
	if policy.MaxAttempts != defaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", defaultMaxAttempts, policy.MaxAttempts)
	}
	if policy.BaseBackoff != defaultBaseBackoff {
		t.Errorf("expected base %s, got %s", defaultBaseBackoff, policy.BaseBackoff)
	}
	if policy.MaxBackoff != defaultMaxBackoff {
		t.Errorf("expected max %s, got %s", defaultMaxBackoff, policy.MaxBackoff)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		wantKind  types.ErrorKind
		retryable bool
	}{
		{"internal error", 500, types.ErrorServer, true},
		{"bad gateway", 502, types.ErrorServer, true},
		{"throttled", 429, types.ErrorServer, true},
		{"bad request", 400, types.ErrorValidation, false},
		{"payload too large", 413, types.ErrorValidation, false},
		{"unprocessable", 422, types.ErrorValidation, false},
		{"not found", 404, types.ErrorServer, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runErr := classifyStatus(tc.code, "body")
			if runErr.Kind != tc.wantKind {
				t.Errorf("expected kind %q, got %q", tc.wantKind, runErr.Kind)
			}
			if runErr.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, runErr.Retryable)
			}
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	runErr := classifyTransportError(context.DeadlineExceeded)
	if runErr.Kind != types.ErrorTimeout {
		t.Errorf("expected timeout kind, got %q", runErr.Kind)
	}
	if !runErr.Retryable {
		t.Error("timeouts must be retryable")
	}

	runErr = classifyTransportError(errors.New("connection refused"))
	if runErr.Kind != types.ErrorNetwork {
		t.Errorf("expected network kind, got %q", runErr.Kind)
	}
	if !runErr.Retryable {
		t.Error("network faults must be retryable")
	}
}
