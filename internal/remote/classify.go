package remote

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/studio-b12/gowebdav"
)

// FailureClass is the outcome of availability classification.
type FailureClass int

const (
	// FailureNone means the storage answered the probe; the triggering
	// operation failed for a path-scoped reason.
	FailureNone FailureClass = iota
	// FailureTransient means the remote cannot be reached or identified
	// right now. Local state stays untouched.
	FailureTransient
	// FailurePermanent means the remote unambiguously rejected the share.
	// The record and mount are removed before the error surfaces.
	FailurePermanent
)

// Verdict reasons.
const (
	ReasonShareGone    = "share_gone"
	ReasonAuthRevoked  = "auth_revoked"
	ReasonUnreachable  = "unreachable"
	ReasonUnidentified = "remote_unidentified"
	ReasonCancelled    = "cancelled"
)

// Verdict is the tagged result of CheckAvailability.
type Verdict struct {
	Class  FailureClass
	Reason string
	Cause  error
}

// shouldClassify reports whether an operation error warrants the
// availability probe. Path-scoped client errors pass through untouched.
func shouldClassify(err error) bool {
	if err == nil {
		return false
	}
	switch status := davStatus(err); {
	case status == 0:
		// No HTTP status at all means the transport failed.
		return true
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return true
	default:
		return status >= 500
	}
}

// davStatus extracts the HTTP status from a gowebdav error, 0 when the error
// never reached the HTTP layer.
func davStatus(err error) int {
	var se gowebdav.StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	var pe *os.PathError
	if errors.As(err, &pe) && os.IsNotExist(pe) {
		return http.StatusNotFound
	}
	return 0
}

// isCancellation reports whether the error stems from the caller's context.
// Cancellation is always transient; a caller giving up says nothing about
// the remote.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
