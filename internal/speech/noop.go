package speech

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

var _ domain.Speaker = (*NoOp)(nil)

// NoOp stands in for the engine on displays that cannot speak. Every
// call fails with domain.ErrSpeechUnsupported, wrapped with the reason,
// so the coordinator falls back to visual-only announcements.
type NoOp struct {
	reason  string
	log     *logger.Logger
	dropped atomic.Int64
}

// NewNoOp creates a silent speaker. reason ends up in the returned error.
func NewNoOp(reason string, log *logger.Logger) *NoOp {
	return &NoOp{reason: reason, log: log}
}

func (n *NoOp) Speak(_ context.Context, text string) error {
	n.dropped.Add(1)
	n.log.Debug("silent (%s): %q", n.reason, text)
	return fmt.Errorf("%w: %s", domain.ErrSpeechUnsupported, n.reason)
}

// Dropped reports how many utterances were not spoken.
func (n *NoOp) Dropped() int64 { return n.dropped.Load() }
