package bus

import (
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEventBus_DeliversByKind(t *testing.T) {
	eb := NewEventBus(testLogger())

	var alerts, all []Event
	eb.Subscribe(EventAlertRaised, func(e Event) { alerts = append(alerts, e) })
	eb.Subscribe("", func(e Event) { all = append(all, e) })

	eb.Emit(Event{Kind: EventAlertRaised, Source: "slack", Channel: "C1", Count: 1})
	eb.Emit(Event{Kind: EventCommandAnswered, Source: "slack", Channel: "C1", Rule: "phi"})

	if len(alerts) != 1 || alerts[0].Channel != "C1" || alerts[0].Count != 1 {
		t.Errorf("unexpected alert deliveries %+v", alerts)
	}
	if len(all) != 2 {
		t.Errorf("catch-all subscriber got %d events, expected 2", len(all))
	}
	if alerts[0].At.IsZero() {
		t.Error("emit should stamp the event time")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	eb := NewEventBus(testLogger())

	var first, second int
	stop := eb.Subscribe(EventPostFailed, func(Event) { first++ })
	eb.Subscribe(EventPostFailed, func(Event) { second++ })

	eb.Emit(Event{Kind: EventPostFailed})
	stop()
	stop()
	eb.Emit(Event{Kind: EventPostFailed})

	if first != 1 || second != 2 {
		t.Errorf("first=%d second=%d, expected 1 and 2", first, second)
	}
}

func TestEventBus_SubscriberPanicIsContained(t *testing.T) {
	eb := NewEventBus(testLogger())

	var reached bool
	eb.Subscribe(EventIgnored, func(Event) { panic("boom") })
	eb.Subscribe(EventIgnored, func(Event) { reached = true })

	eb.Emit(Event{Kind: EventIgnored})

	if !reached {
		t.Error("a panicking subscriber should not stop later ones")
	}
}

func TestEventBus_SubscriptionOrder(t *testing.T) {
	eb := NewEventBus(testLogger())

	var order []int
	for i := 1; i <= 3; i++ {
		eb.Subscribe(EventAlertRaised, func(Event) { order = append(order, i) })
	}
	eb.Emit(Event{Kind: EventAlertRaised})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("unexpected order %v", order)
	}
}
