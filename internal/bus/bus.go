package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"phibot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus queues inbound events from platform adapters until the loop
// drains them, and routes outbound actions to the adapter that owns the
// action's source.
type InMemoryBus struct {
	inbound  chan domain.InboundEvent
	handlers map[string]domain.OutboundHandler
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.InboundEvent, bufferSize),
		handlers: make(map[string]domain.OutboundHandler),
		logger:   logger,
	}
}

// Publish enqueues ev. Blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(ev domain.InboundEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- ev:
	default:
		b.logger.Warn("inbound bus full, waiting...", "source", ev.Source, "channel", ev.Channel)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- ev:
			b.logger.Info("event delivered after wait", "source", ev.Source)
		case <-timer.C:
			b.logger.Error("event dropped: bus full for 10s",
				"source", ev.Source,
				"channel", ev.Channel,
				"ts", ev.TS,
			)
		}
	}
}

// Drain returns up to max queued events in arrival order without blocking.
// max <= 0 drains everything currently queued.
func (b *InMemoryBus) Drain(max int) []domain.InboundEvent {
	var batch []domain.InboundEvent
	for max <= 0 || len(batch) < max {
		select {
		case ev, ok := <-b.inbound:
			if !ok {
				return batch
			}
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

// Len reports the number of queued inbound events.
func (b *InMemoryBus) Len() int {
	return len(b.inbound)
}

// Send routes action to the handler registered for action.Source.
func (b *InMemoryBus) Send(ctx context.Context, action domain.OutboundAction) error {
	b.mu.RLock()
	handler, ok := b.handlers[action.Source]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no handler registered for source", "source", action.Source)
		return fmt.Errorf("%w: %s", domain.ErrNoRoute, action.Source)
	}
	return handler(ctx, action)
}

func (b *InMemoryBus) OnOutbound(source string, handler domain.OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[source] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
