package notify

import (
	syncpkg "github.com/naturelog/backend/internal/sync"
)

// Broadcaster is the hub surface the forwarder needs. Satisfied by *Hub.
type Broadcaster interface {
	Broadcast(eventType string, data map[string]interface{})
}

// ForwardProgress subscribes to the engine's progress broadcaster and
// translates its values into notification events: the first event of a
// pass becomes sync.started, intermediate events sync.progress, and the
// terminal event sync.completed or sync.failed depending on whether any
// record failed. The returned stop function detaches the forwarder.
func ForwardProgress(b Broadcaster, progress *syncpkg.ProgressBroadcaster) (stop func()) {
	ch, cancel := progress.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		inPass := false

		for p := range ch {
			if p.IsComplete {
				forwardTerminal(b, p)
				inPass = false
				continue
			}

			if !inPass {
				b.Broadcast(EventSyncStarted, map[string]interface{}{
					"total": p.Total,
				})
				inPass = true
			}

			b.Broadcast(EventSyncProgress, map[string]interface{}{
				"current":           p.Current,
				"total":             p.Total,
				"current_record_id": p.CurrentRecordID,
			})
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// forwardTerminal emits the completion or failure event for a pass.
func forwardTerminal(b Broadcaster, p syncpkg.SyncProgress) {
	if p.Result == nil {
		return
	}

	if p.Result.Failed > 0 {
		b.Broadcast(EventSyncFailed, map[string]interface{}{
			"attempted":  p.Result.TotalAttempted,
			"successful": p.Result.Successful,
			"failed":     p.Result.Failed,
			"failed_ids": p.Result.FailedIDs,
			"errors":     p.Result.Errors,
			"retryable":  true,
		})
		return
	}

	b.Broadcast(EventSyncCompleted, map[string]interface{}{
		"attempted":  p.Result.TotalAttempted,
		"successful": p.Result.Successful,
	})
}
