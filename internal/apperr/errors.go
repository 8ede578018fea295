// Package apperr defines the sentinel errors shared across the core.
package apperr

import "errors"

var (
	// ErrNotFound marks an unknown repo, document, anchor, provider, or process.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate slug, repo path, or process name.
	ErrConflict = errors.New("conflict")
	// ErrInvalidPath marks a scan target that is not an absolute existing directory.
	ErrInvalidPath = errors.New("invalid path")
	// ErrProviderNotAllowed marks a provider policy check failure.
	ErrProviderNotAllowed = errors.New("provider not allowed")
	// ErrProviderError marks a provider backend execution failure.
	ErrProviderError = errors.New("provider error")
	// ErrProtocolError marks a malformed message from a core plugin process.
	ErrProtocolError = errors.New("protocol error")
	// ErrProcessTerminated marks an in-flight call invalidated by shutdown.
	ErrProcessTerminated = errors.New("process terminated")
	// ErrForbidden marks a capability call denied by the host-side allowlist.
	ErrForbidden = errors.New("forbidden")
)
