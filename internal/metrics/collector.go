// Package metrics exposes the bot loop's counters in Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Counter only goes up.
type Counter struct{ v atomic.Int64 }

func (c *Counter) Inc() { c.v.Add(1) }
func (c *Counter) Add(n int64) { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

// Gauge holds the last value set.
type Gauge struct{ v atomic.Int64 }

func (g *Gauge) Set(n int64) { g.v.Store(n) }
func (g *Gauge) Value() int64 { return g.v.Load() }

// Histogram counts observations into cumulative buckets. The +Inf bucket is
// implicit and equals the observation count.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	n      int64
	sum    float64
}

func newHistogram(bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	for len(b) > 0 && math.IsInf(b[len(b)-1], 1) {
		b = b[:len(b)-1]
	}
	return &Histogram{bounds: b, counts: make([]int64, len(b))}
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.n++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

// RuleCounter is a counter family labelled by dispatcher rule name.
type RuleCounter struct {
	mu    sync.Mutex
	rules map[string]*Counter
}

// For returns the counter for one rule, creating it on first use.
func (r *RuleCounter) For(rule string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rules == nil {
		r.rules = make(map[string]*Counter)
	}
	c, ok := r.rules[rule]
	if !ok {
		c = &Counter{}
		r.rules[rule] = c
	}
	return c
}

func (r *RuleCounter) snapshot() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.rules))
	for k, c := range r.rules {
		out[k] = c.Value()
	}
	return out
}

// Set is every metric the bot reports. The zero value is not usable; build
// one with NewSet.
type Set struct {
	Started time.Time

	Events       Counter
	Ignored      Counter
	Alerts       Counter
	PostFailures Counter
	Dropped      Counter
	Commands     RuleCounter
	QueueDepth   Gauge
	Latency      *Histogram
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

func NewSet() *Set {
	return &Set{Started: time.Now(), Latency: newHistogram(latencyBuckets)}
}

// Default is the process-wide set fed by the bot loop.
var Default = NewSet()

var (
	EventsTotal       = &Default.Events
	IgnoredTotal      = &Default.Ignored
	AlertsTotal       = &Default.Alerts
	PostFailuresTotal = &Default.PostFailures
	DroppedTotal      = &Default.Dropped
	QueueDepth        = &Default.QueueDepth
	DispatchLatency   = Default.Latency
)

// CommandsTotal returns the counter for commands answered by the given rule.
func CommandsTotal(rule string) *Counter {
	return Default.Commands.For(rule)
}

// WriteTo renders the set in Prometheus exposition format. Label values are
// sorted so the output is stable.
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	family := func(name, kind, help string) {
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	}
	scalar := func(name, kind, help string, v int64) {
		family(name, kind, help)
		fmt.Fprintf(&sb, "%s %d\n", name, v)
	}

	scalar("phibot_uptime_seconds", "gauge", "Seconds since the process started", int64(time.Since(s.Started).Seconds()))
	scalar("phibot_events_total", "counter", "Inbound events processed", s.Events.Value())
	scalar("phibot_events_ignored_total", "counter", "Inbound events that needed no action", s.Ignored.Value())
	scalar("phibot_events_dropped_total", "counter", "Drained events abandoned at shutdown", s.Dropped.Value())
	scalar("phibot_alerts_total", "counter", "Sensitive identifier warnings issued", s.Alerts.Value())
	scalar("phibot_post_failures_total", "counter", "Outbound actions that failed", s.PostFailures.Value())
	scalar("phibot_queue_depth", "gauge", "Inbound events waiting for the next tick", s.QueueDepth.Value())

	family("phibot_commands_total", "counter", "Commands answered, by matching rule")
	byRule := s.Commands.snapshot()
	rules := make([]string, 0, len(byRule))
	for r := range byRule {
		rules = append(rules, r)
	}
	sort.Strings(rules)
	for _, r := range rules {
		fmt.Fprintf(&sb, "phibot_commands_total{rule=%q} %d\n", r, byRule[r])
	}

	h := s.Latency
	h.mu.Lock()
	family("phibot_dispatch_latency_seconds", "histogram", "Time to classify and dispatch one event")
	for i, le := range h.bounds {
		fmt.Fprintf(&sb, "phibot_dispatch_latency_seconds_bucket{le=\"%g\"} %d\n", le, h.counts[i])
	}
	fmt.Fprintf(&sb, "phibot_dispatch_latency_seconds_bucket{le=\"+Inf\"} %d\n", h.n)
	fmt.Fprintf(&sb, "phibot_dispatch_latency_seconds_sum %f\n", h.sum)
	fmt.Fprintf(&sb, "phibot_dispatch_latency_seconds_count %d\n", h.n)
	h.mu.Unlock()

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Handler serves the set as text/plain.
func (s *Set) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		s.WriteTo(w)
	}
}
