package sync

import (
	"context"
	stdsync "sync"
	"time"

	apperrors "github.com/naturelog/backend/internal/errors"
	"github.com/naturelog/backend/internal/logging"
	"github.com/naturelog/backend/internal/models"
	"github.com/naturelog/backend/internal/telemetry"
)

// Connectivity is the monitor surface the orchestrator depends on.
type Connectivity interface {
	IsConnected(ctx context.Context) bool
	Changes() (<-chan bool, func())
}

var _ Connectivity = (*ConnectivityMonitor)(nil)

// PassRecorder persists the outcome of completed passes. Optional; a
// recording failure never fails the pass.
type PassRecorder interface {
	CreateSyncReport(report *models.SyncReport) error
}

// Config holds orchestrator configuration.
type Config struct {
	// Retry knobs, shared by batch passes and single-record syncs.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// SyncInterval is the period of the timer trigger while auto-sync
	// is armed.
	SyncInterval time.Duration

	// PrioritizeMedia pushes photo-bearing records first. Photos are the
	// largest and most valuable payloads to land inside a flaky
	// connectivity window.
	PrioritizeMedia bool
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		SyncInterval:    15 * time.Minute,
		PrioritizeMedia: true,
	}
}

// Orchestrator drives the synchronization of pending observations. It
// owns the single-flight guard, the priority policy, the per-record
// retry loop and progress reporting. At most one pass runs at a time;
// triggers arriving during a pass are dropped, not queued.
type Orchestrator struct {
	transport SyncTransport
	monitor   Connectivity
	policy    RetryPolicy
	config    *Config
	progress  *ProgressBroadcaster
	recorder  PassRecorder

	// sleep is the backoff suspension point, replaceable in tests.
	sleep func(ctx context.Context, d time.Duration)

	mu      stdsync.Mutex
	running bool
	armed   bool
	stopCh  chan struct{}
	wg      stdsync.WaitGroup
}

// New creates an Orchestrator. A nil config uses DefaultConfig.
func New(transport SyncTransport, monitor Connectivity, config *Config) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}

	return &Orchestrator{
		transport: transport,
		monitor:   monitor,
		config:    config,
		policy: RetryPolicy{
			MaxAttempts:  config.MaxAttempts,
			InitialDelay: config.InitialDelay,
			MaxDelay:     config.MaxDelay,
		},
		progress: NewProgressBroadcaster(),
		sleep:    sleepContext,
	}
}

// SetRecorder attaches a pass history recorder.
func (o *Orchestrator) SetRecorder(recorder PassRecorder) {
	o.recorder = recorder
}

// Progress returns the pass progress broadcaster. Late subscribers
// immediately receive the most recent value.
func (o *Orchestrator) Progress() *ProgressBroadcaster {
	return o.progress
}

// IsRunning reports whether a sync pass is currently in flight.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// StartAutoSync arms the two automatic triggers: a connectivity rise and
// a periodic timer. Idempotent; calling while armed is a no-op.
func (o *Orchestrator) StartAutoSync(ctx context.Context) {
	o.mu.Lock()
	if o.armed {
		o.mu.Unlock()
		return
	}
	o.armed = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	o.wg.Add(1)
	go o.autoSyncLoop(ctx, o.stopCh)

	logging.Info("Auto-sync armed",
		map[string]interface{}{"interval_minutes": o.config.SyncInterval.Minutes()})
}

// StopAutoSync disarms both triggers. A pass already running is not
// cancelled; it finishes and keeps the single-flight guard honored for
// any trigger that arrives meanwhile.
func (o *Orchestrator) StopAutoSync() {
	o.mu.Lock()
	if !o.armed {
		o.mu.Unlock()
		return
	}
	o.armed = false
	close(o.stopCh)
	o.mu.Unlock()

	o.wg.Wait()

	logging.Info("Auto-sync disarmed", nil)
}

// autoSyncLoop waits on the connectivity stream and the periodic timer.
func (o *Orchestrator) autoSyncLoop(ctx context.Context, stopCh chan struct{}) {
	defer o.wg.Done()

	changes, cancel := o.monitor.Changes()
	defer cancel()

	ticker := time.NewTicker(o.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case online := <-changes:
			if online {
				go o.runTriggered(ctx, "connectivity")
			}
		case <-ticker.C:
			go o.runTriggered(ctx, "timer")
		}
	}
}

// runTriggered runs one pass on behalf of an automatic trigger. The
// single-flight guard inside RunSyncPass makes overlapping triggers a
// no-op.
func (o *Orchestrator) runTriggered(ctx context.Context, trigger string) {
	result, err := o.RunSyncPass(ctx)
	if err != nil {
		logging.ErrorWithCode("Sync pass failed", string(apperrors.ErrSyncFailed), err,
			map[string]interface{}{"trigger": trigger})
		return
	}

	if result.TotalAttempted > 0 {
		logging.Info("Sync pass completed",
			map[string]interface{}{
				"trigger":    trigger,
				"attempted":  result.TotalAttempted,
				"successful": result.Successful,
				"failed":     result.Failed,
			})
	}
}

// RunSyncPass synchronizes the whole pending batch. At most one pass
// runs concurrently; a call arriving while another pass is running
// returns an empty result without touching the transport. An offline
// device skips the pass silently. Per-record failures are accumulated
// into the result, never returned as an error; only a failure to read
// the pending snapshot surfaces to the caller.
func (o *Orchestrator) RunSyncPass(ctx context.Context) (*SyncResult, error) {
	if !o.beginPass() {
		return emptyResult(), nil
	}
	defer o.endPass()

	if !o.monitor.IsConnected(ctx) {
		logging.Debug("Skipping sync pass, device offline", nil)
		return emptyResult(), nil
	}

	startedAt := time.Now()

	pending, err := o.transport.PendingRecords(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read pending records", err)
	}

	result := emptyResult()

	if len(pending) == 0 {
		o.progress.Publish(SyncProgress{IsComplete: true, Result: result})
		return result, nil
	}

	batch := o.prioritize(pending)
	total := len(batch)
	result.TotalAttempted = total

	for i, obs := range batch {
		o.progress.Publish(SyncProgress{
			Current:         i,
			Total:           total,
			CurrentRecordID: obs.ID.String(),
		})

		if err := o.pushWithRetry(ctx, obs); err != nil {
			result.addFailure(obs.ID.String(), err)
			logging.ErrorWithCode("Observation sync failed", string(apperrors.Code(err)), err,
				map[string]interface{}{"observation_id": obs.ID.String()})
			continue
		}

		if err := o.transport.MarkSynced(ctx, obs.ID.String()); err != nil {
			// The remote accepted the record; a local bookkeeping failure
			// only means the next pass pushes it again, which is safe.
			logging.Warn("Failed to mark observation synced",
				map[string]interface{}{"observation_id": obs.ID.String()})
		}
		result.Successful++
	}

	o.progress.Publish(SyncProgress{
		Current:    total,
		Total:      total,
		IsComplete: true,
		Result:     result,
	})

	o.recordPass(startedAt, result)

	return result, nil
}

// SyncOne pushes a single record outside the batch machinery, for an
// explicit user-initiated retry. It requires connectivity and runs the
// same retry loop as a pass, without emitting batch progress.
func (o *Orchestrator) SyncOne(ctx context.Context, obs *models.Observation) error {
	if !o.monitor.IsConnected(ctx) {
		return apperrors.New(apperrors.ErrSyncOffline, "device is offline")
	}

	if err := o.pushWithRetry(ctx, obs); err != nil {
		return err
	}

	if err := o.transport.MarkSynced(ctx, obs.ID.String()); err != nil {
		logging.Warn("Failed to mark observation synced",
			map[string]interface{}{"observation_id": obs.ID.String()})
	}

	return nil
}

// pushWithRetry drives one record through policy-governed attempts.
// The backoff sleep is the only suspension point besides the push
// itself.
func (o *Orchestrator) pushWithRetry(ctx context.Context, obs *models.Observation) error {
	for attempt := 1; ; attempt++ {
		err := o.transport.Push(ctx, obs)
		if err == nil {
			return nil
		}

		if !o.policy.ShouldRetry(err, attempt) {
			return err
		}

		delay := o.policy.DelayFor(attempt)
		logging.Debug("Retrying observation push",
			map[string]interface{}{
				"observation_id": obs.ID.String(),
				"attempt":        attempt,
				"delay_ms":       delay.Milliseconds(),
			})
		o.sleep(ctx, delay)

		if ctx.Err() != nil {
			return err
		}
	}
}

// prioritize orders the batch media-first, preserving each group's
// relative order, when the priority toggle is on.
func (o *Orchestrator) prioritize(pending []*models.Observation) []*models.Observation {
	if !o.config.PrioritizeMedia {
		return pending
	}

	ordered := make([]*models.Observation, 0, len(pending))
	for _, obs := range pending {
		if obs.HasMedia() {
			ordered = append(ordered, obs)
		}
	}
	for _, obs := range pending {
		if !obs.HasMedia() {
			ordered = append(ordered, obs)
		}
	}
	return ordered
}

// recordPass persists pass history and counters. Best-effort only.
func (o *Orchestrator) recordPass(startedAt time.Time, result *SyncResult) {
	telemetry.RecordCount("sync.pass.completed", 1)
	telemetry.RecordCount("sync.records.synced", result.Successful)
	telemetry.RecordCount("sync.records.failed", result.Failed)
	telemetry.RecordTiming("sync.pass.duration", time.Since(startedAt))

	if o.recorder == nil {
		return
	}

	report := &models.SyncReport{
		StartedAt:  startedAt.Unix(),
		FinishedAt: time.Now().Unix(),
		Attempted:  result.TotalAttempted,
		Succeeded:  result.Successful,
		Failed:     result.Failed,
	}
	if len(result.Errors) > 0 {
		report.FirstError = result.Errors[0]
	}

	if err := o.recorder.CreateSyncReport(report); err != nil {
		logging.Warn("Failed to record sync report", nil)
	}
}

// beginPass atomically claims the single-flight guard.
func (o *Orchestrator) beginPass() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

// endPass releases the guard. Deferred by RunSyncPass so the guard is
// released even when a pass fails early.
func (o *Orchestrator) endPass() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// sleepContext waits for the duration or the context, whichever ends
// first.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
