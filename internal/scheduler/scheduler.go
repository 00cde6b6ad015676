// Package scheduler runs the reflection engine in the background: it
// watches accumulated memory importance, decides when a reflection session
// is warranted, and executes sessions under a concurrency cap with
// timeout and retry.
//
// Grounded on background_reflection_service.rs's BackgroundReflectionService
// (monitoring_loop/check_reflection_triggers/execute_reflection_session/
// determine_priority) and the teacher's enrichment worker pool in
// internal/engine/enrichment_worker.go (WaitGroup-gated goroutines, a
// close-and-drain shutdown with a timeout fallback).
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/reflection"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/pkg/types"
)

// Scheduler owns the reflection engine's background lifecycle: periodic
// trigger checks, manual trigger requests, and bounded concurrent session
// execution.
type Scheduler struct {
	store    store.Store
	engine   *reflection.Engine
	schedCfg config.SchedulerConfig

	isRunning atomic.Bool
	semaphore chan struct{}
	metrics   *Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup

	manualTriggers chan Trigger

	onSessionComplete func(sessionID string, insightCount int)
}

// New builds a Scheduler wired to store s and reflection engine e. The
// reflection trigger/cooldown/cutoff policy lives entirely on e; schedCfg
// only configures the scheduler's own dispatch mechanics (concurrency,
// timeouts, retry, priority bands).
func New(s store.Store, e *reflection.Engine, schedCfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:          s,
		engine:         e,
		schedCfg:       schedCfg,
		semaphore:      make(chan struct{}, schedCfg.MaxConcurrentSessions),
		metrics:        newMetrics(),
		manualTriggers: make(chan Trigger, 8),
	}
}

// SetOnSessionComplete registers a callback invoked after every completed
// reflection session, letting a caller (e.g. the websocket hub) push a
// live notification without the scheduler knowing about transports.
func (sch *Scheduler) SetOnSessionComplete(fn func(sessionID string, insightCount int)) {
	sch.onSessionComplete = fn
}

// Start begins the monitoring loop. It is idempotent: calling Start on an
// already-running Scheduler is a no-op, matching is_running's guard in the
// original service.
func (sch *Scheduler) Start(ctx context.Context) {
	if !sch.isRunning.CompareAndSwap(false, true) {
		return
	}
	sch.stopCh = make(chan struct{})

	sch.wg.Add(1)
	go sch.monitoringLoop(ctx)
}

// Stop signals the monitoring loop to exit and waits (up to
// schedCfg.ShutdownTimeout) for in-flight sessions to drain.
func (sch *Scheduler) Stop(ctx context.Context) error {
	if !sch.isRunning.CompareAndSwap(true, false) {
		return nil
	}
	close(sch.stopCh)

	done := make(chan struct{})
	go func() {
		sch.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(sch.schedCfg.ShutdownTimeout):
		log.Printf("scheduler: shutdown timeout reached, sessions may be abandoned")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the monitoring loop is active.
func (sch *Scheduler) IsRunning() bool {
	return sch.isRunning.Load()
}

// Metrics returns a point-in-time snapshot of service metrics.
func (sch *Scheduler) Metrics() Snapshot {
	return sch.metrics.snapshot()
}

// TriggerManual enqueues an operator-requested reflection session at
// Medium priority, mirroring trigger_manual_reflection's hardcoded
// priority in the original service.
func (sch *Scheduler) TriggerManual(ctx context.Context, reason string) {
	t := Trigger{
		Priority: PriorityMedium,
		Type:     TriggerManualRequest,
		Reason:   reason,
	}
	select {
	case sch.manualTriggers <- t:
	case <-ctx.Done():
	}
}

// monitoringLoop polls for reflection triggers on schedCfg.CheckInterval
// until Stop is called, and also drains manually-requested triggers as
// they arrive. Each detected trigger is executed in its own goroutine,
// gated by the session semaphore.
func (sch *Scheduler) monitoringLoop(ctx context.Context) {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.schedCfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.stopCh:
			return
		case <-ctx.Done():
			return
		case t := <-sch.manualTriggers:
			sch.dispatch(ctx, t)
		case <-ticker.C:
			if trigger, ok := sch.checkReflectionTriggers(ctx); ok {
				log.Printf("scheduler: reflection trigger detected: %s priority, reason: %s", trigger.Priority, trigger.Reason)
				sch.dispatch(ctx, trigger)
			}
		}
	}
}

// checkReflectionTriggers computes accumulated importance across memories
// created since the last completed reflection and delegates the
// trigger-or-not decision to reflection.Engine.ShouldTrigger, so the
// cooldown it enforces (spec.md §4.3/§4.4) governs the scheduler's dispatch
// path rather than being reimplemented here. Falls through to a
// low-priority maintenance trigger when should_trigger_maintenance_reflection
// would fire — that predicate is a stub in the original (always false) and
// stays one here.
func (sch *Scheduler) checkReflectionTriggers(ctx context.Context) (Trigger, bool) {
	importance, count, err := sch.calculateAccumulatedImportance(ctx)
	if err != nil {
		log.Printf("scheduler: failed to calculate accumulated importance: %v", err)
		return Trigger{}, false
	}

	if sch.engine.ShouldTrigger(ctx, importance) {
		priority := determinePriority(sch.schedCfg.PriorityThresholds, importance)
		return Trigger{
			Priority:              priority,
			Type:                  TriggerImportanceAccumulation,
			Reason:                "accumulated importance threshold exceeded",
			AccumulatedImportance: importance,
			MemoryCount:           count,
		}, true
	}

	if sch.shouldTriggerMaintenanceReflection() {
		return Trigger{
			Priority: PriorityLow,
			Type:     TriggerSystemMaintenance,
			Reason:   "routine maintenance reflection",
		}, true
	}

	return Trigger{}, false
}

// shouldTriggerMaintenanceReflection is a stub: the original service
// leaves this unimplemented ("could be based on time patterns, system
// health, etc.") and always returns false.
func (sch *Scheduler) shouldTriggerMaintenanceReflection() bool {
	return false
}

// calculateAccumulatedImportance sums ImportanceScore across memories in
// the live tiers created since the last completed reflection (the zero
// time, before any reflection has run, so every live memory counts),
// ported from calculate_accumulated_importance / get_recent_memory_count.
func (sch *Scheduler) calculateAccumulatedImportance(ctx context.Context) (float64, int, error) {
	cutoff := sch.engine.LastRunAt()

	var total float64
	var count int
	for _, tier := range []types.Tier{types.TierWorking, types.TierWarm, types.TierCold} {
		mems, err := sch.store.ListByTier(ctx, tier)
		if err != nil {
			return 0, 0, err
		}
		for _, m := range mems {
			if !m.CreatedAt.Before(cutoff) {
				total += m.ImportanceScore
				count++
			}
		}
	}
	return total, count, nil
}

// dispatch runs one reflection session under the concurrency semaphore,
// applying the session timeout and exponential-backoff retry.
func (sch *Scheduler) dispatch(ctx context.Context, trigger Trigger) {
	select {
	case sch.semaphore <- struct{}{}:
	case <-sch.stopCh:
		return
	case <-ctx.Done():
		return
	}

	sch.wg.Add(1)
	go func() {
		defer sch.wg.Done()
		defer func() { <-sch.semaphore }()
		sch.executeReflectionSessionWithRetry(ctx, trigger)
	}()
}

// executeReflectionSessionWithRetry calls the reflection engine, retrying
// up to MaxRetryAttempts times with exponential backoff on failure (one
// second before the first retry, multiplied by RetryBackoffMultiplier
// before each later one), ported from execute_reflection_with_timeout's
// retry wrapper.
func (sch *Scheduler) executeReflectionSessionWithRetry(ctx context.Context, trigger Trigger) {
	sch.metrics.recordStarted()
	startedAt := time.Now()

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt <= sch.schedCfg.MaxRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-sch.stopCh:
				sch.metrics.recordFailed(trigger.Type)
				return
			case <-ctx.Done():
				sch.metrics.recordFailed(trigger.Type)
				return
			}
			backoff = time.Duration(float64(backoff) * sch.schedCfg.RetryBackoffMultiplier)
		}

		sessCtx, cancel := context.WithTimeout(ctx, sch.schedCfg.SessionTimeout)
		session, err := sch.engine.Run(sessCtx, trigger.Reason)
		cancel()
		if err == nil {
			sch.metrics.recordCompleted(trigger.Type, time.Since(startedAt), session.GeneratedInsightCount, startedAt)
			if sch.onSessionComplete != nil {
				sch.onSessionComplete(session.ID, session.GeneratedInsightCount)
			}
			return
		}
		lastErr = err
		log.Printf("scheduler: reflection session attempt %d failed: %v", attempt, err)
	}

	log.Printf("scheduler: reflection session exhausted retries: %v", lastErr)
	sch.metrics.recordFailed(trigger.Type)
}
