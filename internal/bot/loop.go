// Package bot drives the poll, classify and dispatch cycle.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"phibot/internal/bus"
	"phibot/internal/classifier"
	"phibot/internal/dispatch"
	"phibot/internal/domain"
	"phibot/internal/metrics"
	"phibot/internal/scanner"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Loop drains the inbound bus on a fixed cadence and handles each event to
// completion before looking at the next one. It runs on a single goroutine.
type Loop struct {
	bus           domain.MessageBus
	dispatcher    *dispatch.Dispatcher
	identities    map[string]domain.Identity
	pollInterval  time.Duration
	batchSize     int
	disableAlerts bool
	events        *bus.EventBus
	logger        *slog.Logger
}

// LoopConfig holds the dependencies and tuning parameters for the loop.
type LoopConfig struct {
	Bus           domain.MessageBus
	Dispatcher    *dispatch.Dispatcher
	Identities    map[string]domain.Identity // keyed by InboundEvent.Source
	PollInterval  time.Duration              // default 1s
	BatchSize     int                        // default 100
	DisableAlerts bool                       // classify but do not warn on identifiers
	Events        *bus.EventBus              // optional
	Logger        *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ids := make(map[string]domain.Identity, len(cfg.Identities))
	for src, id := range cfg.Identities {
		ids[src] = id
	}
	return &Loop{
		bus:           cfg.Bus,
		dispatcher:    cfg.Dispatcher,
		identities:    ids,
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		disableAlerts: cfg.DisableAlerts,
		events:        cfg.Events,
		logger:        cfg.Logger,
	}
}

// Run polls until ctx is cancelled. Events still queued at shutdown are not handled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("bot loop started", "poll_interval", l.pollInterval, "batch_size", l.batchSize)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("bot loop stopping")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick drains one batch and handles it in arrival order. It returns the
// number of events handled. If ctx is cancelled mid-batch the remaining
// events are dropped and logged.
func (l *Loop) Tick(ctx context.Context) int {
	batch := l.bus.Drain(l.batchSize)
	if q, ok := l.bus.(interface{ Len() int }); ok {
		metrics.QueueDepth.Set(int64(q.Len()))
	}
	for i, ev := range batch {
		if ctx.Err() != nil {
			dropped := len(batch) - i
			metrics.DroppedTotal.Add(int64(dropped))
			l.logger.Warn("batch abandoned on shutdown", "handled", i, "dropped", dropped)
			return i
		}
		l.Handle(ctx, ev)
	}
	return len(batch)
}

// Handle classifies one event and performs its outbound action, if any.
func (l *Loop) Handle(ctx context.Context, ev domain.InboundEvent) domain.Intent {
	start := time.Now()
	metrics.EventsTotal.Inc()
	defer func() { metrics.DispatchLatency.Observe(time.Since(start).Seconds()) }()

	id, ok := l.identities[ev.Source]
	if !ok {
		l.logger.Warn("event from unregistered source ignored", "source", ev.Source, "channel", ev.Channel)
		l.ignored(ev)
		return domain.Ignore(ev)
	}

	intent := classifier.Classify(ev, id)
	switch intent.Kind {
	case domain.IntentCommand:
		rule, err := l.dispatcher.DispatchCommand(ctx, ev.Source, intent.Command, intent.Channel)
		metrics.CommandsTotal(rule).Inc()
		if err != nil {
			l.postFailed(ev, err)
			return intent
		}
		l.emit(bus.Event{Kind: bus.EventCommandAnswered, Rule: rule}, ev)

	case domain.IntentSensitive:
		if l.disableAlerts {
			l.logger.Debug("identifier found, alerts disabled", "source", ev.Source, "channel", ev.Channel)
			l.ignored(ev)
			return intent
		}
		metrics.AlertsTotal.Inc()
		l.logger.Info("identifier detected",
			"source", ev.Source,
			"channel", ev.Channel,
			"author", ev.Author,
			"ts", ev.TS,
		)
		l.emit(bus.Event{Kind: bus.EventAlertRaised, Count: len(scanner.Tokens(ev.Text))}, ev)
		err := l.dispatcher.DispatchSensitiveWarning(ctx, ev, intent.Redacted, id.MentionUser(ev.Author))
		if err != nil {
			l.postFailed(ev, err)
		}

	default:
		l.ignored(ev)
	}
	return intent
}

func (l *Loop) ignored(ev domain.InboundEvent) {
	metrics.IgnoredTotal.Inc()
	l.emit(bus.Event{Kind: bus.EventIgnored}, ev)
}

func (l *Loop) postFailed(ev domain.InboundEvent, err error) {
	metrics.PostFailuresTotal.Inc()

	attrs := []any{"source", ev.Source, "channel", ev.Channel, "error", err}
	var pf *domain.PostFailedError
	if errors.As(err, &pf) {
		attrs = append(attrs, "text_len", len(pf.Text))
	}
	l.logger.Error("outbound action failed", attrs...)

	l.emit(bus.Event{Kind: bus.EventPostFailed, Err: err.Error()}, ev)
}

// emit fills the event's origin fields from ev and publishes it.
func (l *Loop) emit(out bus.Event, ev domain.InboundEvent) {
	if l.events == nil {
		return
	}
	out.Source = ev.Source
	out.Channel = ev.Channel
	out.Author = ev.Author
	out.TS = ev.TS
	l.events.Emit(out)
}
