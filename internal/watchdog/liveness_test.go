package watchdog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mailbot/internal/napcat"
	logx "mailbot/pkg/logx"
)

type fakeGateway struct {
	cred  string
	token bool

	loginCalls  int
	loginErr    error
	loginResult string

	statusCalls int
	statusFn    func() (bool, error)
}

func (f *fakeGateway) Login(context.Context) (string, error) {
	f.loginCalls++
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.loginResult, nil
}

func (f *fakeGateway) Status(_ context.Context, _ string) (bool, error) {
	f.statusCalls++
	return f.statusFn()
}

func (f *fakeGateway) ConfiguredCredential() string { return f.cred }
func (f *fakeGateway) HasToken() bool               { return f.token }
func (f *fakeGateway) BaseURL() string              { return "https://napcat.local:6099" }

func onlineFn(v bool) func() (bool, error)  { return func() (bool, error) { return v, nil } }
func failFn(msg string) func() (bool, error) {
	return func() (bool, error) { return false, errors.New(msg) }
}

func newLivenessUnderTest(cfg LivenessConfig, gw *fakeGateway, sink *fakeNotifier) *Liveness {
	return NewLiveness(cfg, gw, sink, logx.Nop())
}

func TestDebounceExactlyOneAlert(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{cred: "c1", statusFn: onlineFn(true)}
	sink := &fakeNotifier{}
	w := newLivenessUnderTest(LivenessConfig{FailureThreshold: 2, Cooldown: 30 * time.Minute}, gw, sink)
	ctx := context.Background()

	// Establish Online.
	if err := w.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if st, _ := w.Snapshot(); st != StatusOnline {
		t.Fatalf("state = %v, want online", st)
	}

	// First failure stays below the threshold: no alert, state untouched.
	gw.statusFn = failFn("connection refused")
	if err := w.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("alerts after 1 failure = %d, want 0", sink.count())
	}
	if st, _ := w.Snapshot(); st != StatusOnline {
		t.Fatalf("state after 1 failure = %v, want online", st)
	}

	// Second consecutive failure crosses the threshold: exactly one alert.
	if err := w.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("alerts after 2 failures = %d, want 1", sink.count())
	}
	if sink.alerts[0].Kind != KindGatewayOffline {
		t.Fatalf("kind = %q", sink.alerts[0].Kind)
	}
	if st, _ := w.Snapshot(); st != StatusOffline {
		t.Fatalf("state = %v, want offline", st)
	}
}

func TestSingleFailureThenSuccessKeepsOnline(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{cred: "c1", statusFn: onlineFn(true)}
	sink := &fakeNotifier{}
	w := newLivenessUnderTest(LivenessConfig{FailureThreshold: 2}, gw, sink)
	ctx := context.Background()

	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	gw.statusFn = failFn("timeout")
	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	gw.statusFn = onlineFn(true)
	// The transport failure dropped the credential; re-login happens here.
	gw.token = true
	gw.loginResult = "c2"
	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}

	if sink.count() != 0 {
		t.Fatalf("alerts = %d, want 0", sink.count())
	}
	if st, _ := w.Snapshot(); st != StatusOnline {
		t.Fatalf("state = %v, want online", st)
	}
}

func TestCooldownIdempotence(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{cred: "c1", statusFn: onlineFn(true)}
	sink := &fakeNotifier{}
	w := newLivenessUnderTest(LivenessConfig{FailureThreshold: 1, Cooldown: 30 * time.Minute}, gw, sink)
	ctx := context.Background()

	base := time.Now()
	clock := base
	w.now = func() time.Time { return clock }

	transition := func(offsets ...time.Duration) {
		t.Helper()
		for _, off := range offsets {
			clock = base.Add(off)
			gw.statusFn = onlineFn(true)
			if err := w.Cycle(ctx); err != nil {
				t.Fatal(err)
			}
			gw.statusFn = onlineFn(false)
			if err := w.Cycle(ctx); err != nil {
				t.Fatal(err)
			}
		}
	}

	// Two Online→Offline transitions inside the cooldown window: one alert.
	transition(0, 10*time.Minute)
	if sink.count() != 1 {
		t.Fatalf("alerts inside cooldown = %d, want 1", sink.count())
	}

	// A third transition after the window expires alerts again.
	transition(40 * time.Minute)
	if sink.count() != 2 {
		t.Fatalf("alerts after cooldown = %d, want 2", sink.count())
	}
}

func TestUnknownToOfflineNeverAlerts(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{cred: "c1", statusFn: onlineFn(false)}
	sink := &fakeNotifier{}
	w := newLivenessUnderTest(LivenessConfig{FailureThreshold: 2}, gw, sink)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 0 {
		t.Fatalf("alerts = %d, want 0 (first ever reading)", sink.count())
	}
	if st, _ := w.Snapshot(); st != StatusOffline {
		t.Fatalf("state = %v, want offline", st)
	}
}

func TestUnknownViaFailuresNeverAlerts(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{token: true, loginErr: errors.New("401")}
	sink := &fakeNotifier{}
	w := newLivenessUnderTest(LivenessConfig{FailureThreshold: 2}, gw, sink)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := w.Cycle(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if sink.count() != 0 {
		t.Fatalf("alerts = %d, want 0 (never verified online)", sink.count())
	}
	if st, _ := w.Snapshot(); st != StatusOffline {
		t.Fatalf("state = %v, want offline", st)
	}
}

func TestFetchFailureDropsCredentialParseFailureKeepsIt(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{cred: "c1", token: true, loginResult: "c2", statusFn: onlineFn(true)}
	sink := &fakeNotifier{}
	w := newLivenessUnderTest(LivenessConfig{FailureThreshold: 5}, gw, sink)
	ctx := context.Background()

	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if gw.loginCalls != 0 {
		t.Fatalf("login calls = %d before any failure", gw.loginCalls)
	}

	// Parse failure: credential survives, no re-login.
	gw.statusFn = func() (bool, error) {
		return false, fmt.Errorf("%w: no online field", napcat.ErrParse)
	}
	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	gw.statusFn = onlineFn(true)
	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if gw.loginCalls != 0 {
		t.Fatalf("login calls after parse failure = %d, want 0", gw.loginCalls)
	}

	// Transport failure: credential dropped, next cycle re-authenticates.
	gw.statusFn = failFn("connection reset")
	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	gw.statusFn = onlineFn(true)
	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if gw.loginCalls != 1 {
		t.Fatalf("login calls after transport failure = %d, want 1", gw.loginCalls)
	}
}

func TestQueryNowDoesNotPerturbLoopState(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{cred: "c1", statusFn: onlineFn(true)}
	sink := &fakeNotifier{}
	w := newLivenessUnderTest(LivenessConfig{FailureThreshold: 2}, gw, sink)
	ctx := context.Background()

	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	gw.statusFn = failFn("blip")
	if err := w.Cycle(ctx); err != nil {
		t.Fatal(err)
	}

	// Manual query fails too, but must not push the counter to the
	// threshold.
	if _, err := w.QueryNow(ctx); err == nil {
		t.Fatal("expected QueryNow failure")
	}
	w.mu.Lock()
	fails := w.failCount
	w.mu.Unlock()
	if fails != 1 {
		t.Fatalf("failCount = %d after manual query, want 1", fails)
	}
	if st, _ := w.Snapshot(); st != StatusOnline {
		t.Fatalf("state = %v, want online (still below threshold)", st)
	}
}
