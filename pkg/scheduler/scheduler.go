package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aviary-ai/aviary/pkg/queue"
	"github.com/aviary-ai/aviary/pkg/store"
)

// DefaultInterval is the reconcile cadence.
const DefaultInterval = time.Minute

// specParser accepts standard 5-field cron expressions.
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSpec checks a cron expression against the 5-field grammar the
// scheduler accepts. Triggers with invalid expressions never fire.
func ValidateSpec(expr string) error {
	_, err := specParser.Parse(expr)
	return err
}

// TriggerStore is the slice of the database store the scheduler needs.
type TriggerStore interface {
	ListActiveScheduleTriggers(ctx context.Context) ([]store.ScheduleTrigger, error)
	UpdateScheduleRun(ctx context.Context, id string, lastRun, nextRun time.Time) error
}

type entry struct {
	spec     string
	timezone string
	schedule cron.Schedule
	location *time.Location
	next     time.Time
}

// Scheduler reconciles active schedule triggers every interval and
// enqueues a workflow job when a trigger's fire time has passed. Missed
// fires collapse: at most one catch-up per trigger per tick.
type Scheduler struct {
	store    TriggerStore
	queue    queue.Enqueuer
	interval time.Duration
	parser   cron.Parser
	entries  map[string]*entry

	now func() time.Time
}

func New(triggerStore TriggerStore, enqueuer queue.Enqueuer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:    triggerStore,
		queue:    enqueuer,
		interval: interval,
		parser:   specParser,
		entries:  make(map[string]*entry),
		now:      time.Now,
	}
}

// Run blocks until the context is cancelled, reconciling once per
// interval. The first reconcile happens immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	triggers, err := s.store.ListActiveScheduleTriggers(ctx)
	if err != nil {
		slog.Error("failed to list schedule triggers", "error", err)
		return
	}

	now := s.now()
	seen := make(map[string]bool, len(triggers))

	for _, trigger := range triggers {
		seen[trigger.ID] = true
		e, ok := s.entries[trigger.ID]
		if !ok || e.spec != trigger.CronExpression || e.timezone != trigger.Timezone {
			e = s.buildEntry(trigger)
			if e == nil {
				// Invalid cron expressions are skipped silently; the
				// trigger stays in the database for the owner to fix.
				delete(s.entries, trigger.ID)
				continue
			}
			s.entries[trigger.ID] = e
		}

		localNow := now.In(e.location)
		if e.next.IsZero() {
			e.next = e.schedule.Next(localNow)
			continue
		}

		if e.next.After(localNow) {
			continue
		}

		// Older missed fires are discarded: next is computed from now,
		// not from the missed fire time.
		e.next = e.schedule.Next(localNow)
		s.fire(ctx, trigger, now)
	}

	for id := range s.entries {
		if !seen[id] {
			delete(s.entries, id)
		}
	}
}

func (s *Scheduler) buildEntry(trigger store.ScheduleTrigger) *entry {
	schedule, err := s.parser.Parse(trigger.CronExpression)
	if err != nil {
		slog.Debug("skipping trigger with invalid cron expression",
			"trigger_id", trigger.ID,
			"cron", trigger.CronExpression)
		return nil
	}

	location, err := time.LoadLocation(trigger.Timezone)
	if err != nil {
		slog.Debug("unknown trigger timezone, falling back to UTC",
			"trigger_id", trigger.ID,
			"timezone", trigger.Timezone)
		location = time.UTC
	}

	return &entry{
		spec:     trigger.CronExpression,
		timezone: trigger.Timezone,
		schedule: schedule,
		location: location,
	}
}

func (s *Scheduler) fire(ctx context.Context, trigger store.ScheduleTrigger, now time.Time) {
	localEntry := s.entries[trigger.ID]
	if err := s.store.UpdateScheduleRun(ctx, trigger.ID, now.UTC(), localEntry.next.UTC()); err != nil {
		slog.Warn("failed to record schedule run", "trigger_id", trigger.ID, "error", err)
	}

	taskID, err := s.queue.EnqueueWorkflow(ctx, queue.ExecuteWorkflowPayload{
		WorkflowID:  trigger.WorkflowID,
		TriggerType: queue.TriggerSchedule,
		TriggerData: map[string]interface{}{
			"schedule_trigger_id": trigger.ID,
		},
	})
	if err != nil {
		slog.Error("failed to enqueue scheduled workflow",
			"trigger_id", trigger.ID,
			"workflow_id", trigger.WorkflowID,
			"error", err)
		return
	}

	slog.Info("scheduled workflow fired",
		"trigger_id", trigger.ID,
		"workflow_id", trigger.WorkflowID,
		"task_id", taskID)
}
