package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"phibot/internal/bus"
	"phibot/internal/dispatch"
	"phibot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// outbox records actions delivered for the "slack" source.
type outbox struct {
	mu      sync.Mutex
	actions []domain.OutboundAction
	failFor map[string]error // keyed by channel
	sent    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{failFor: map[string]error{}, sent: make(chan struct{}, 64)}
}

func (o *outbox) handle(ctx context.Context, action domain.OutboundAction) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failFor[action.Channel]; err != nil {
		return err
	}
	o.actions = append(o.actions, action)
	o.sent <- struct{}{}
	return nil
}

func (o *outbox) snapshot() []domain.OutboundAction {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.OutboundAction, len(o.actions))
	copy(out, o.actions)
	return out
}

type harness struct {
	bus    *bus.InMemoryBus
	events *bus.EventBus
	out    *outbox
	loop   *Loop
}

func newHarness(t *testing.T, mutate func(*LoopConfig)) *harness {
	t.Helper()
	logger := testLogger()
	b := bus.New(16, logger)
	t.Cleanup(b.Close)

	out := newOutbox()
	b.OnOutbound("slack", out.handle)

	events := bus.NewEventBus(logger)
	cfg := LoopConfig{
		Bus:          b,
		Dispatcher:   dispatch.New(dispatch.Config{Poster: b, Logger: logger}),
		Identities:   map[string]domain.Identity{"slack": domain.SlackIdentity("UBOT")},
		PollInterval: 10 * time.Millisecond,
		Events:       events,
		Logger:       logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &harness{bus: b, events: events, out: out, loop: NewLoop(cfg)}
}

func slackEvent(channel, author, text string) domain.InboundEvent {
	return domain.InboundEvent{Source: "slack", Channel: channel, Author: author, Text: text, TS: "1700000000.000100"}
}

func TestTick_AnswersCommand(t *testing.T) {
	h := newHarness(t, nil)
	h.bus.Publish(slackEvent("C1", "U1", "<@UBOT> hello"))

	if n := h.loop.Tick(context.Background()); n != 1 {
		t.Fatalf("expected 1 event handled, got %d", n)
	}
	got := h.out.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if got[0].Channel != "C1" || got[0].Text != "Hi there." {
		t.Errorf("unexpected post %+v", got[0])
	}
}

func TestTick_WarnsOnIdentifier(t *testing.T) {
	h := newHarness(t, nil)
	h.bus.Publish(slackEvent("C2", "U42", "MRN 12345678 please check"))

	h.loop.Tick(context.Background())

	got := h.out.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	want := "WARNING! <@U42> It looks like you might have posted a patient Identifier. Please resolve now."
	if got[0].Text != want {
		t.Errorf("got %q", got[0].Text)
	}
}

func TestTick_PreservesArrivalOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.bus.Publish(slackEvent("C1", "U1", "<@UBOT> phi"))
	h.bus.Publish(slackEvent("C2", "U2", "nothing to see"))
	h.bus.Publish(slackEvent("C3", "U3", "acc 87654321"))
	h.bus.Publish(slackEvent("C4", "U4", "<@UBOT> do it"))

	if n := h.loop.Tick(context.Background()); n != 4 {
		t.Fatalf("expected 4 events handled, got %d", n)
	}

	got := h.out.snapshot()
	channels := make([]string, len(got))
	for i, a := range got {
		channels[i] = a.Channel
	}
	if strings.Join(channels, ",") != "C1,C3,C4" {
		t.Errorf("unexpected post order %v", channels)
	}
}

func TestTick_RespectsBatchSize(t *testing.T) {
	h := newHarness(t, func(c *LoopConfig) { c.BatchSize = 2 })
	for i := 0; i < 3; i++ {
		h.bus.Publish(slackEvent("C1", "U1", "<@UBOT> hi"))
	}

	if n := h.loop.Tick(context.Background()); n != 2 {
		t.Fatalf("first tick handled %d, expected 2", n)
	}
	if n := h.loop.Tick(context.Background()); n != 1 {
		t.Fatalf("second tick handled %d, expected 1", n)
	}
}

func TestHandle_UnknownSourceIgnored(t *testing.T) {
	h := newHarness(t, nil)
	ev := domain.InboundEvent{Source: "irc", Channel: "#x", Text: "12345678"}

	intent := h.loop.Handle(context.Background(), ev)
	if intent.Kind != domain.IntentIgnore {
		t.Errorf("expected ignore, got %s", intent.Kind)
	}
	if len(h.out.snapshot()) != 0 {
		t.Error("no action expected for an unknown source")
	}
}

func TestHandle_AlertsDisabled(t *testing.T) {
	h := newHarness(t, func(c *LoopConfig) { c.DisableAlerts = true })

	intent := h.loop.Handle(context.Background(), slackEvent("C1", "U1", "12345678"))
	if intent.Kind != domain.IntentSensitive {
		t.Errorf("classification should not change, got %s", intent.Kind)
	}
	if len(h.out.snapshot()) != 0 {
		t.Error("no warning expected with alerts disabled")
	}
}

func TestHandle_PostFailureDoesNotStopBatch(t *testing.T) {
	h := newHarness(t, nil)
	h.out.failFor["C1"] = errors.New("channel_not_found")

	var failed []bus.Event
	h.events.Subscribe(bus.EventPostFailed, func(e bus.Event) { failed = append(failed, e) })

	h.bus.Publish(slackEvent("C1", "U1", "<@UBOT> hi"))
	h.bus.Publish(slackEvent("C2", "U2", "<@UBOT> hi"))
	h.loop.Tick(context.Background())

	got := h.out.snapshot()
	if len(got) != 1 || got[0].Channel != "C2" {
		t.Fatalf("expected the second post to go through, got %+v", got)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 post.failed event, got %d", len(failed))
	}
	if failed[0].Channel != "C1" || !strings.Contains(failed[0].Err, "channel_not_found") {
		t.Errorf("unexpected event %+v", failed[0])
	}
}

func TestHandle_AlertEventCarriesNoText(t *testing.T) {
	h := newHarness(t, nil)

	var raised []bus.Event
	h.events.Subscribe(bus.EventAlertRaised, func(e bus.Event) { raised = append(raised, e) })

	h.loop.Handle(context.Background(), slackEvent("C9", "U7", "ids 12345678 and 87654321"))

	if len(raised) != 1 {
		t.Fatalf("expected 1 alert event, got %d", len(raised))
	}
	e := raised[0]
	if e.Count != 2 {
		t.Errorf("count = %d, expected 2", e.Count)
	}
	if e.Author != "U7" || e.Channel != "C9" || e.Source != "slack" {
		t.Errorf("unexpected event %+v", e)
	}
	if strings.Contains(fmt.Sprintf("%+v", e), "12345678") {
		t.Errorf("event leaks the identifier: %+v", e)
	}
}

func TestHandle_CommandEventNamesRule(t *testing.T) {
	h := newHarness(t, nil)

	var answered []bus.Event
	h.events.Subscribe(bus.EventCommandAnswered, func(e bus.Event) { answered = append(answered, e) })

	h.loop.Handle(context.Background(), slackEvent("C1", "U1", "<@UBOT> what is PHI"))

	if len(answered) != 1 || answered[0].Rule != "phi" {
		t.Fatalf("unexpected events %+v", answered)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.loop.Run(ctx)
		close(done)
	}()

	h.bus.Publish(slackEvent("C1", "U1", "<@UBOT> hello"))
	select {
	case <-h.out.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not answer within 2s")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestTick_IgnoresEventWithoutChannel(t *testing.T) {
	h := newHarness(t, nil)
	h.bus.Publish(domain.InboundEvent{Source: "slack", Author: "U1", Text: "<@UBOT> hi", TS: "1.0"})
	h.bus.Publish(domain.InboundEvent{Source: "slack", Author: "U1", Text: "MRN 12345678", TS: "1.1"})

	var failed []bus.Event
	h.events.Subscribe(bus.EventPostFailed, func(e bus.Event) { failed = append(failed, e) })

	if n := h.loop.Tick(context.Background()); n != 2 {
		t.Fatalf("expected 2 events handled, got %d", n)
	}
	if got := h.out.snapshot(); len(got) != 0 {
		t.Errorf("expected nothing posted, got %+v", got)
	}
	if len(failed) != 0 {
		t.Errorf("expected no post failures, got %+v", failed)
	}
}

func TestTick_CancelledMidBatchReportsHandled(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.events.Subscribe(bus.EventCommandAnswered, func(bus.Event) { cancel() })

	for i := 0; i < 3; i++ {
		h.bus.Publish(slackEvent("C1", "U1", "<@UBOT> hi"))
	}

	if n := h.loop.Tick(ctx); n != 1 {
		t.Fatalf("expected 1 event handled before cancel, got %d", n)
	}
	if got := len(h.out.snapshot()); got != 1 {
		t.Errorf("expected 1 post, got %d", got)
	}
}
