package audit

import (
	"context"
	"log/slog"
	"time"

	"phibot/internal/bus"
)

const recordTimeout = 5 * time.Second

// Recorder writes an Alert row for every alert.raised event.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	stop   func()
}

// NewRecorder subscribes store to events. Call Stop to unsubscribe.
func NewRecorder(store *Store, events *bus.EventBus, logger *slog.Logger) *Recorder {
	r := &Recorder{store: store, logger: logger}
	r.stop = events.Subscribe(bus.EventAlertRaised, r.handle)
	return r
}

func (r *Recorder) Stop() {
	r.stop()
}

func (r *Recorder) handle(e bus.Event) {
	a := Alert{
		Platform:    e.Source,
		Channel:     e.Channel,
		Author:      e.Author,
		MessageTS:   e.TS,
		Identifiers: e.Count,
		CreatedAt:   e.At.UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if _, err := r.store.Record(ctx, a); err != nil {
		r.logger.Error("audit record failed", "channel", a.Channel, "err", err)
	}
}
