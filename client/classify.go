package client

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/talentsift/research-sdk-go/types"
)

// classifyTransportError maps an error from the HTTP round trip into the
// error taxonomy. Timeouts are tracked as their own kind but retry like
// network failures.
func classifyTransportError(err error) *types.RunError {
	kind := types.ErrorNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = types.ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = types.ErrorTimeout
	}
	return &types.RunError{Kind: kind, Message: err.Error(), Retryable: true}
}

// classifyStatus maps a non-2xx HTTP response into the taxonomy. Server
// faults and throttling retry; everything else fails fast.
func classifyStatus(statusCode int, body string) *types.RunError {
	switch {
	case statusCode >= 500:
		return &types.RunError{Kind: types.ErrorServer, Message: body, Retryable: true}
	case statusCode == http.StatusTooManyRequests:
		return &types.RunError{Kind: types.ErrorServer, Message: body, Retryable: true}
	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusRequestEntityTooLarge,
		statusCode == http.StatusUnsupportedMediaType,
		statusCode == http.StatusUnprocessableEntity:
		return &types.RunError{Kind: types.ErrorValidation, Message: body, Retryable: false}
	default:
		return &types.RunError{Kind: types.ErrorServer, Message: body, Retryable: false}
	}
}
