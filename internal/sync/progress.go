package sync

import "sync"

// SyncProgress describes one point in an in-flight sync pass.
// Invariants: 0 <= Current <= Total; Result is non-nil iff IsComplete.
type SyncProgress struct {
	Current         int    `json:"current"`
	Total           int    `json:"total"`
	CurrentRecordID string `json:"current_record_id,omitempty"`
	IsComplete      bool   `json:"is_complete"`

	Result *SyncResult `json:"result,omitempty"`
}

// SyncResult summarizes one completed sync pass. FailedIDs and Errors
// are parallel lists in processing order.
type SyncResult struct {
	TotalAttempted int      `json:"total_attempted"`
	Successful     int      `json:"successful"`
	Failed         int      `json:"failed"`
	FailedIDs      []string `json:"failed_ids"`
	Errors         []string `json:"errors"`
}

// emptyResult is returned by passes that did no work (offline, or
// another pass already running).
func emptyResult() *SyncResult {
	return &SyncResult{
		FailedIDs: []string{},
		Errors:    []string{},
	}
}

// addFailure records one record's final failure.
func (r *SyncResult) addFailure(id string, err error) {
	r.Failed++
	r.FailedIDs = append(r.FailedIDs, id)
	r.Errors = append(r.Errors, err.Error())
}

// ProgressBroadcaster multicasts SyncProgress values to any number of
// subscribers, retaining the latest value for immediate replay to late
// subscribers. A subscriber that doesn't keep up only ever sees the most
// recent value; the publisher never blocks on a slow consumer.
type ProgressBroadcaster struct {
	mu       sync.Mutex
	subs     map[int]chan SyncProgress
	nextID   int
	last     SyncProgress
	haveLast bool
}

// NewProgressBroadcaster creates an empty broadcaster.
func NewProgressBroadcaster() *ProgressBroadcaster {
	return &ProgressBroadcaster{
		subs: make(map[int]chan SyncProgress),
	}
}

// Subscribe attaches a subscriber. If a value has ever been published
// the latest one is delivered immediately. The cancel function detaches
// the subscriber and closes its channel.
func (b *ProgressBroadcaster) Subscribe() (<-chan SyncProgress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan SyncProgress, 1)
	if b.haveLast {
		ch <- b.last
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers a value to all subscribers and retains it for replay.
func (b *ProgressBroadcaster) Publish(p SyncProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = p
	b.haveLast = true

	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
			// Subscriber hasn't drained the previous value; replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

// Latest returns the most recently published value, if any.
func (b *ProgressBroadcaster) Latest() (SyncProgress, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.haveLast
}
