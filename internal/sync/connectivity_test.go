// Package sync tests for the connectivity monitor.
package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProbe is a controllable Probe for tests.
type fakeProbe struct {
	state  atomic.Bool
	checks atomic.Int64
}

func (p *fakeProbe) Check(ctx context.Context) bool {
	p.checks.Add(1)
	return p.state.Load()
}

// receiveBool waits briefly for a value on the stream.
func receiveBool(t *testing.T, ch <-chan bool) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connectivity value")
		return false
	}
}

// TestHTTPProbe verifies reachability is judged by a real response.
func TestHTTPProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	probe := NewHTTPProbe(server.URL)
	if !probe.Check(context.Background()) {
		t.Error("Check() = false against a live server, want true")
	}

	server.Close()
	if probe.Check(context.Background()) {
		t.Error("Check() = true against a closed server, want false")
	}
}

// TestIsConnected verifies the snapshot check delegates to the probe.
func TestIsConnected(t *testing.T) {
	probe := &fakeProbe{}
	monitor := NewConnectivityMonitor(probe, 10*time.Millisecond)

	if monitor.IsConnected(context.Background()) {
		t.Error("IsConnected() = true with offline probe")
	}

	probe.state.Store(true)
	if !monitor.IsConnected(context.Background()) {
		t.Error("IsConnected() = false with online probe")
	}
}

// TestChanges_emitsInitialAndTransitions verifies the stream delivers
// the first reading and subsequent transitions.
func TestChanges_emitsInitialAndTransitions(t *testing.T) {
	probe := &fakeProbe{}
	monitor := NewConnectivityMonitor(probe, 5*time.Millisecond)

	ch, cancel := monitor.Changes()
	defer cancel()

	if v := receiveBool(t, ch); v {
		t.Error("initial connectivity value = true, want false")
	}

	probe.state.Store(true)
	if v := receiveBool(t, ch); !v {
		t.Error("transition value = false, want true")
	}
}

// TestChanges_deduplicates verifies no two consecutive identical values
// are delivered.
func TestChanges_deduplicates(t *testing.T) {
	probe := &fakeProbe{}
	probe.state.Store(true)
	monitor := NewConnectivityMonitor(probe, 5*time.Millisecond)

	ch, cancel := monitor.Changes()
	defer cancel()

	if v := receiveBool(t, ch); !v {
		t.Fatal("initial connectivity value = false, want true")
	}

	// Let several polls of the same state happen.
	time.Sleep(50 * time.Millisecond)

	select {
	case v := <-ch:
		t.Errorf("duplicate value %v delivered for unchanged state", v)
	default:
	}
}

// TestChanges_lazyStartStop verifies the poll loop runs only while
// subscribers are attached.
func TestChanges_lazyStartStop(t *testing.T) {
	probe := &fakeProbe{}
	monitor := NewConnectivityMonitor(probe, 5*time.Millisecond)

	if probe.checks.Load() != 0 {
		t.Fatal("probe checked before any subscription")
	}

	_, cancel1 := monitor.Changes()
	_, cancel2 := monitor.Changes()

	time.Sleep(30 * time.Millisecond)
	if probe.checks.Load() == 0 {
		t.Fatal("poll loop did not start after subscription")
	}

	if monitor.subscriberCount() != 2 {
		t.Errorf("subscriberCount = %d, want 2", monitor.subscriberCount())
	}

	cancel1()
	cancel1() // double-cancel is a no-op
	cancel2()

	if monitor.subscriberCount() != 0 {
		t.Errorf("subscriberCount = %d after cancels, want 0", monitor.subscriberCount())
	}

	// Poll loop must wind down once the last subscriber detaches.
	time.Sleep(20 * time.Millisecond)
	settled := probe.checks.Load()
	time.Sleep(30 * time.Millisecond)
	if probe.checks.Load() != settled {
		t.Error("probe still being polled after last unsubscribe")
	}
}

// TestChanges_resubscribeRestarts verifies the stream is restartable
// after it has been stopped.
func TestChanges_resubscribeRestarts(t *testing.T) {
	probe := &fakeProbe{}
	probe.state.Store(true)
	monitor := NewConnectivityMonitor(probe, 5*time.Millisecond)

	ch, cancel := monitor.Changes()
	receiveBool(t, ch)
	cancel()

	ch2, cancel2 := monitor.Changes()
	defer cancel2()

	if v := receiveBool(t, ch2); !v {
		t.Error("restarted stream initial value = false, want true")
	}
}
