package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/weave/id"
)

// TriggerFunc is the callback the scheduler uses to fire a workflow.
// This breaks the import cycle: the trigger ingress provides the
// implementation.
type TriggerFunc func(ctx context.Context, workflowID id.WorkflowID, initialData map[string]any) (id.EventID, error)

// Emitter emits schedule lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, entryName string, eventID id.EventID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-entry firing locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// payloadKey is the namespace under which a fired entry delivers its
// initial data, matching the webhook convention ("googleForm",
// "stripe") so templates address it as {{schedule.*}}.
const payloadKey = "schedule"

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseExpr parses a cron expression and returns the schedule.
// Exported so registration can validate expressions up front.
func ParseExpr(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires due schedule entries on a tick loop.
type Scheduler struct {
	store    Store
	trigger  TriggerFunc
	emitter  Emitter
	workerID id.WorkerID
	logger   *slog.Logger

	tickInterval time.Duration
	lockTTL      time.Duration

	// parsed caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	store Store,
	trigger TriggerFunc,
	emitter Emitter,
	workerID id.WorkerID,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		trigger:      trigger,
		emitter:      emitter,
		workerID:     workerID,
		logger:       logger,
		tickInterval: 1 * time.Second,
		lockTTL:      30 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and persists a schedule entry, computing its first
// NextRunAt.
func (s *Scheduler) Register(ctx context.Context, entry *Entry) error {
	sched, err := s.getOrParse(entry.Expr)
	if err != nil {
		return err
	}
	next := sched.Next(time.Now().UTC())
	entry.NextRunAt = &next
	return s.store.RegisterSchedule(ctx, entry)
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started",
		slog.String("worker_id", s.workerID.String()),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the loop to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// tickLoop fires on each tick interval and processes due entries.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	entries, err := s.store.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("list schedules error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		s.fireEntry(ctx, entry, now)
	}
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	// Acquire per-entry lock.
	acquired, err := s.store.AcquireScheduleLock(ctx, entry.ID, s.workerID, s.lockTTL)
	if err != nil {
		s.logger.Error("acquire schedule lock error",
			slog.String("schedule_id", entry.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another instance got it.
	}

	eventID, trigErr := s.trigger(ctx, entry.WorkflowID, map[string]any{payloadKey: entry.InitialData})
	if trigErr != nil {
		s.logger.Error("schedule trigger error",
			slog.String("schedule_name", entry.Name),
			slog.String("workflow_id", entry.WorkflowID.String()),
			slog.String("error", trigErr.Error()),
		)
		if relErr := s.store.ReleaseScheduleLock(ctx, entry.ID, s.workerID); relErr != nil {
			s.logger.Error("release schedule lock error",
				slog.String("schedule_id", entry.ID.String()),
				slog.String("error", relErr.Error()),
			)
		}
		return
	}

	// Update LastRunAt.
	if updateErr := s.store.UpdateScheduleLastRun(ctx, entry.ID, now); updateErr != nil {
		s.logger.Error("update schedule last run error",
			slog.String("schedule_id", entry.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}

	// Compute and persist NextRunAt.
	sched, parseErr := s.getOrParse(entry.Expr)
	if parseErr != nil {
		s.logger.Error("parse schedule expr error",
			slog.String("schedule_name", entry.Name),
			slog.String("expr", entry.Expr),
			slog.String("error", parseErr.Error()),
		)
	} else {
		next := sched.Next(now)
		entry.NextRunAt = &next
		if updateErr := s.store.UpdateScheduleEntry(ctx, entry); updateErr != nil {
			s.logger.Error("update schedule next run error",
				slog.String("schedule_id", entry.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
	}

	// Release lock.
	if relErr := s.store.ReleaseScheduleLock(ctx, entry.ID, s.workerID); relErr != nil {
		s.logger.Error("release schedule lock error",
			slog.String("schedule_id", entry.ID.String()),
			slog.String("error", relErr.Error()),
		)
	}

	// Emit hook.
	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, entry.Name, eventID)
	}

	s.logger.Info("schedule fired",
		slog.String("schedule_name", entry.Name),
		slog.String("workflow_id", entry.WorkflowID.String()),
		slog.String("event_id", eventID.String()),
	)
}

// getOrParse caches parsed cron expressions.
func (s *Scheduler) getOrParse(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseExpr(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
