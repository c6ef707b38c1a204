package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid ticket state")
	ErrClosed       = errors.New("closed")

	// ErrMissingDestination is a caller bug: an announcement was requested
	// without a destination name. It is never retried.
	ErrMissingDestination = errors.New("missing destination name")

	// ErrSpeechUnsupported means no speech platform is available at all.
	ErrSpeechUnsupported = errors.New("speech synthesis unsupported")
	// ErrSpeechInitTimeout means the platform never confirmed readiness
	// within the retry budget. Treated as unsupported for the session.
	ErrSpeechInitTimeout = errors.New("speech synthesis initialization timed out")
	// ErrSpeechFailed is a transient failure of one utterance after retry.
	ErrSpeechFailed = errors.New("speech synthesis failed")

	// ErrBroadcastUnsupported means no broadcast backend is configured.
	// Callers fall back to the change-feed path.
	ErrBroadcastUnsupported = errors.New("broadcast unsupported")
)
