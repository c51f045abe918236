package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies an upstream completion failure. The worker branches on
// it exhaustively instead of matching error text.
type Kind string

const (
	// KindRateLimited means the upstream provider throttled the request.
	KindRateLimited Kind = "rate_limited"
	// KindUpstream covers auth failures, 5xx responses and malformed
	// replies.
	KindUpstream Kind = "upstream"
	// KindTimeout means the per-call deadline elapsed.
	KindTimeout Kind = "timeout"
	// KindNetwork means the provider could not be reached at all.
	KindNetwork Kind = "network"
)

// Error is a classified upstream completion failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classified kind of err, defaulting to KindUpstream
// for anything unrecognized.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return KindUpstream
}

// classifyTransport maps transport-level failures shared by all HTTP
// providers. Returns nil when err is not a transport failure.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Err: err}
		}
		return &Error{Kind: KindNetwork, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	return nil
}

// classifyStatus maps an upstream HTTP status code.
func classifyStatus(status int, err error) *Error {
	if status == 429 {
		return &Error{Kind: KindRateLimited, Err: err}
	}
	return &Error{Kind: KindUpstream, Err: err}
}
