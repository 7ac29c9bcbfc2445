package marketdata

import (
	"context"
	"errors"
	"net"
	"strings"

	xhttp "OptEdge/pkg/http"
)

var (
	// ErrSourceUnavailable marks connection or auth failures. The resolver
	// falls through to the next source.
	ErrSourceUnavailable = errors.New("marketdata: source unavailable")

	// ErrSubscriptionMissing is terminal for a (source, symbol) pair this
	// session: the source is demoted and not retried until the cooldown
	// elapses.
	ErrSubscriptionMissing = errors.New("marketdata: subscription missing")

	// ErrTimeout marks an upstream fetch that exceeded its deadline.
	// Treated as transient.
	ErrTimeout = errors.New("marketdata: fetch timeout")
)

// failureClass separates errors the resolver may retry on the same source
// from errors that demote the source for the symbol.
type failureClass int

const (
	failureTransient failureClass = iota
	failureTerminal
)

// classify maps an upstream error onto the retry/demotion taxonomy.
func classify(err error) failureClass {
	switch {
	case errors.Is(err, ErrSubscriptionMissing):
		return failureTerminal
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return failureTransient
	}

	var statusErr *xhttp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 402, 403:
			return failureTerminal
		default:
			return failureTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return failureTransient
	}

	// Some upstreams report entitlement problems only in the message body.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not subscribed") || strings.Contains(msg, "not entitled") {
		return failureTerminal
	}

	return failureTransient
}
