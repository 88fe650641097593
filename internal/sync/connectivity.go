package sync

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Probe performs a point-in-time reachability check. Implementations
// must fold their own failures into a false result; a probe error means
// "not connected", never a fault.
type Probe interface {
	Check(ctx context.Context) bool
}

// HTTPProbe checks reachability by issuing a HEAD request against a
// health endpoint. A device can hold a link-layer connection with no
// upstream reachability, so interface presence is not good enough.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// NewHTTPProbe creates a probe against the given health URL.
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		URL: url,
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Check reports whether the remote endpoint is reachable. Any HTTP
// response counts as reachable; only transport failures do not.
func (p *HTTPProbe) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return true
}

// ConnectivityMonitor wraps a Probe and exposes an on-demand snapshot
// plus a de-duplicated multicast stream of connectivity transitions.
// The poll loop holding the underlying probe runs only while at least
// one subscriber is attached.
type ConnectivityMonitor struct {
	probe    Probe
	interval time.Duration

	mu       sync.Mutex
	subs     map[int]chan bool
	nextID   int
	last     bool
	haveLast bool
	stopCh   chan struct{}
}

// NewConnectivityMonitor creates a monitor polling the probe at the
// given interval while subscribers are attached.
func NewConnectivityMonitor(probe Probe, interval time.Duration) *ConnectivityMonitor {
	return &ConnectivityMonitor{
		probe:    probe,
		interval: interval,
		subs:     make(map[int]chan bool),
	}
}

// IsConnected performs a point-in-time reachability check.
func (m *ConnectivityMonitor) IsConnected(ctx context.Context) bool {
	return m.probe.Check(ctx)
}

// Changes subscribes to the connectivity stream. The returned channel
// carries the de-duplicated connectivity state (no two consecutive
// identical values); the first value arrives after the next poll. The
// cancel function detaches the subscriber; when the last subscriber
// detaches the poll loop stops.
func (m *ConnectivityMonitor) Changes() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	ch := make(chan bool, 1)
	m.subs[id] = ch

	if len(m.subs) == 1 {
		m.haveLast = false
		m.stopCh = make(chan struct{})
		go m.pollLoop(m.stopCh)
	}

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; !ok {
			return
		}
		delete(m.subs, id)
		if len(m.subs) == 0 && m.stopCh != nil {
			close(m.stopCh)
			m.stopCh = nil
		}
	}

	return ch, cancel
}

// pollLoop probes at the configured interval and broadcasts transitions.
func (m *ConnectivityMonitor) pollLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// First reading right away so subscribers don't wait a full interval.
	m.observe(stopCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.observe(stopCh)
		}
	}
}

// observe takes one probe reading and broadcasts it if it differs from
// the previous one.
func (m *ConnectivityMonitor) observe(stopCh chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	state := m.probe.Check(ctx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-stopCh:
		return
	default:
	}

	if m.haveLast && state == m.last {
		return
	}
	m.last = state
	m.haveLast = true

	for _, ch := range m.subs {
		// Latest-wins: a subscriber that hasn't drained the previous
		// value only ever sees the most recent state.
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// subscriberCount reports attached subscribers. Test hook.
func (m *ConnectivityMonitor) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
