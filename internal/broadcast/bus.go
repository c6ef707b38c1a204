package broadcast

import (
	"context"
	"sync"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface check.
var _ Backend = (*Bus)(nil)

const busBuffer = 64

type busClient struct {
	id      int
	channel string
	send    chan []byte
	done    chan struct{}
}

// Bus is an in-process Backend: the same-machine fan-out between a call
// console and displays hosted by one process. A slow listener drops
// messages rather than stalling senders.
type Bus struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[int]*busClient
	nextID  int
	closed  bool
}

// NewBus creates an empty bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{log: log, clients: make(map[int]*busClient)}
}

// Send delivers payload to every listener on channel.
func (b *Bus) Send(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return domain.ErrClosed
	}
	for _, c := range b.clients {
		if c.channel != channel {
			continue
		}
		select {
		case c.send <- payload:
		default:
			b.log.Warn("bus: drop message for listener %d", c.id)
		}
	}
	return nil
}

// Listen registers fn on channel. Payloads are delivered in send order on
// a goroutine owned by the listener.
func (b *Bus) Listen(_ context.Context, channel string, fn func([]byte)) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, domain.ErrClosed
	}
	c := &busClient{
		id:      b.nextID,
		channel: channel,
		send:    make(chan []byte, busBuffer),
		done:    make(chan struct{}),
	}
	b.nextID++
	b.clients[c.id] = c
	b.mu.Unlock()

	go func() {
		defer close(c.done)
		for payload := range c.send {
			fn(payload)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unregister(c)
			<-c.done
		})
	}, nil
}

func (b *Bus) unregister(c *busClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c.id]; !ok {
		return
	}
	delete(b.clients, c.id)
	close(c.send)
}

// Close unregisters every listener.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	clients := b.clients
	b.clients = make(map[int]*busClient)
	b.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
	return nil
}
