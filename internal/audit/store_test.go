package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"phibot/internal/bus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "alerts.db"), testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_MigratesToCurrentVersion(t *testing.T) {
	s := testStore(t)
	v, err := GetSchemaVersion(s.db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("schema version = %d, expected %d", v, schemaVersion)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := testStore(t)
	if err := RunMigrations(s.db, testLogger()); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestRecord_FillsIDAndTime(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.Record(ctx, Alert{Platform: "slack", Channel: "C1", Author: "U1", MessageTS: "1.2", Identifiers: 1})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(a.ID) != 36 {
		t.Errorf("expected a uuid id, got %q", a.ID)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, ch := range []string{"C1", "C2", "C3"} {
		if _, err := s.Record(ctx, Alert{Platform: "slack", Channel: ch, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(got))
	}
	if got[0].Channel != "C3" || got[1].Channel != "C2" {
		t.Errorf("unexpected order: %s, %s", got[0].Channel, got[1].Channel)
	}
}

func TestPrune_RemovesOldRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s.Record(ctx, Alert{Platform: "slack", Channel: "old", CreatedAt: now.Add(-48 * time.Hour)})
	s.Record(ctx, Alert{Platform: "slack", Channel: "new", CreatedAt: now})

	removed, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, expected 1", removed)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d after prune", n)
	}
}

func TestRecorder_StoresAlertEvents(t *testing.T) {
	s := testStore(t)
	events := bus.NewEventBus(testLogger())
	r := NewRecorder(s, events, testLogger())

	events.Emit(bus.Event{
		Kind:    bus.EventAlertRaised,
		Source:  "slack",
		Channel: "C7",
		Author:  "U9",
		TS:      "1700000000.000200",
		Count:   2,
	})
	events.Emit(bus.Event{Kind: bus.EventCommandAnswered, Source: "slack"})

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 stored alert, got %d", len(got))
	}
	a := got[0]
	if a.Platform != "slack" || a.Channel != "C7" || a.Author != "U9" || a.Identifiers != 2 {
		t.Errorf("unexpected alert %+v", a)
	}

	r.Stop()
	events.Emit(bus.Event{Kind: bus.EventAlertRaised, Source: "slack", Channel: "C8"})
	if n, _ := s.Count(context.Background()); n != 1 {
		t.Errorf("recorder should be unsubscribed, count = %d", n)
	}
}

func TestSnapshot_CopiesAlerts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, ch := range []string{"C1", "C2"} {
		if _, err := s.Record(ctx, Alert{Platform: "slack", Channel: ch, Identifiers: 1}); err != nil {
			t.Fatal(err)
		}
	}

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := s.Snapshot(ctx, dest); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := s.Snapshot(ctx, dest); err == nil {
		t.Error("expected error when the destination exists")
	}

	cp, err := NewStore(dest, testLogger())
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer cp.Close()
	if n, _ := cp.Count(ctx); n != 2 {
		t.Errorf("snapshot has %d alerts, expected 2", n)
	}
}
