package frontier

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// Class is the scheduler's view of a crawl failure.
type Class int

// Failure classes.
const (
	ClassPermanent Class = iota
	ClassRetryable
	ClassUnexpected
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassUnexpected:
		return "unexpected"
	default:
		return "permanent"
	}
}

// retryableMarkers lists the transient transport failures worth retrying.
// Anything unmatched is permanent so the frontier keeps moving.
var retryableMarkers = []string{
	"err_blocked_by_client",
	"err_connection_closed",
	"err_connection_timed_out",
	"err_connection_reset",
	"err_cert_common_name_invalid",
	"deadlock",
	"navigation timeout",
	"protocol error",
	"detached frame",
	"connection reset by peer",
	"i/o timeout",
}

var permanentOutcomes = []error{
	search.ErrRobotsDisallowed,
	search.ErrPageNotOK,
	search.ErrNoContent,
}

// Classify maps a crawl error to a failure class.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}
	if errors.Is(err, search.ErrInvalidTarget) {
		return ClassPermanent
	}
	for _, target := range permanentOutcomes {
		if errors.Is(err, target) {
			return ClassPermanent
		}
	}
	if errors.Is(err, search.ErrRendererUnavailable) {
		return ClassUnexpected
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return ClassRetryable
		}
	}
	return ClassPermanent
}
