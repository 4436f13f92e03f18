package bus

import (
	"log/slog"
	"sync"
	"time"
)

const (
	EventAlertRaised     = "alert.raised"
	EventCommandAnswered = "command.answered"
	EventPostFailed      = "post.failed"
	EventIgnored         = "event.ignored"
)

// Event is an outcome of handling one inbound message. It has no field for
// the message text, so subscribers can log or store it freely.
type Event struct {
	Kind    string
	Source  string // platform of the triggering message
	Channel string
	Author  string
	TS      string
	Rule    string // command.answered: the dispatcher rule that matched
	Count   int    // alert.raised: identifiers found
	Err     string // post.failed
	At      time.Time
}

type subscription struct {
	id   uint64
	kind string
	fn   func(Event)
}

// EventBus delivers loop outcomes synchronously to subscribers. The loop
// emits; the audit recorder and tests subscribe.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{logger: logger}
}

// Subscribe calls fn for every event of the given kind, or for every event
// when kind is empty. The returned func removes the subscription.
func (eb *EventBus) Subscribe(kind string, fn func(Event)) (unsubscribe func()) {
	eb.mu.Lock()
	eb.nextID++
	id := eb.nextID
	eb.subs = append(eb.subs, subscription{id: id, kind: kind, fn: fn})
	eb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			for i, s := range eb.subs {
				if s.id == id {
					eb.subs = append(eb.subs[:i:i], eb.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit runs matching subscribers in subscription order on the caller's
// goroutine. A panicking subscriber is logged and skipped.
func (eb *EventBus) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	eb.mu.RLock()
	var targets []func(Event)
	for _, s := range eb.subs {
		if s.kind == "" || s.kind == ev.Kind {
			targets = append(targets, s.fn)
		}
	}
	eb.mu.RUnlock()

	for _, fn := range targets {
		eb.deliver(fn, ev)
	}
}

func (eb *EventBus) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event subscriber panic", "event", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}
