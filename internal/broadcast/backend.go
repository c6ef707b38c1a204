package broadcast

import "context"

// Backend is the wire medium under a Transport. Every listener on a
// channel receives every payload sent to it, including the sender's own.
type Backend interface {
	Send(ctx context.Context, channel string, payload []byte) error
	// Listen registers fn for payloads on channel. fn runs on a backend
	// goroutine and must not block for long.
	Listen(ctx context.Context, channel string, fn func(payload []byte)) (stop func(), err error)
	Close() error
}
