package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mailbot/internal/sysmon"
	logx "mailbot/pkg/logx"
)

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (f *fakeNotifier) Notify(_ context.Context, a Alert) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return "sent: 1 recipients in total"
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

type fakeMetrics struct {
	snap sysmon.Snapshot
	err  error
}

func (f *fakeMetrics) Read(context.Context) (sysmon.Snapshot, error) { return f.snap, f.err }

func TestMemoryFiresAboveThreshold(t *testing.T) {
	t.Parallel()
	metrics := &fakeMetrics{snap: sysmon.Snapshot{
		MemPercent: 91.5, MemTotal: 8 << 30, MemAvailable: 1 << 30, Hostname: "srv1",
	}}
	sink := &fakeNotifier{}
	w := NewMemory(MemoryConfig{ThresholdPercent: 80, Cooldown: 30 * time.Minute, Recipients: []string{"ops@x.com"}}, metrics, sink, logx.Nop())

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("alerts = %d, want 1", sink.count())
	}
	a := sink.alerts[0]
	if a.Kind != KindMemoryThreshold {
		t.Fatalf("kind = %q", a.Kind)
	}
	if a.Payload["Hostname"] != "srv1" {
		t.Fatalf("payload hostname = %v", a.Payload["Hostname"])
	}
}

func TestMemoryBelowThresholdDoesNothing(t *testing.T) {
	t.Parallel()
	metrics := &fakeMetrics{snap: sysmon.Snapshot{MemPercent: 50}}
	sink := &fakeNotifier{}
	w := NewMemory(MemoryConfig{ThresholdPercent: 80}, metrics, sink, logx.Nop())

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("alerts = %d, want 0", sink.count())
	}
}

func TestMemoryCooldownSkipsEvaluation(t *testing.T) {
	t.Parallel()
	metrics := &fakeMetrics{snap: sysmon.Snapshot{MemPercent: 95}}
	sink := &fakeNotifier{}
	w := NewMemory(MemoryConfig{ThresholdPercent: 80, Cooldown: 30 * time.Minute}, metrics, sink, logx.Nop())

	base := time.Now()
	w.now = func() time.Time { return base }
	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	w.now = func() time.Time { return base.Add(10 * time.Minute) }
	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("cooldown cycle: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("alerts = %d, want 1 (cooldown must suppress)", sink.count())
	}

	w.now = func() time.Time { return base.Add(31 * time.Minute) }
	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("post-cooldown cycle: %v", err)
	}
	if sink.count() != 2 {
		t.Fatalf("alerts = %d, want 2", sink.count())
	}
}

func TestMemoryMetricsErrorIsNotFatal(t *testing.T) {
	t.Parallel()
	metrics := &fakeMetrics{err: errors.New("no such device")}
	sink := &fakeNotifier{}
	w := NewMemory(MemoryConfig{ThresholdPercent: 80}, metrics, sink, logx.Nop())

	if err := w.Cycle(context.Background()); err == nil {
		t.Fatal("expected error from metrics read")
	}
	if sink.count() != 0 {
		t.Fatalf("alerts = %d, want 0", sink.count())
	}
}

func TestMemoryIntervalFloor(t *testing.T) {
	t.Parallel()
	w := NewMemory(MemoryConfig{Interval: time.Second}, &fakeMetrics{}, &fakeNotifier{}, logx.Nop())
	if got := w.Interval(); got != 5*time.Second {
		t.Fatalf("Interval = %v, want 5s floor", got)
	}
}
