package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lexroute/internal/infra/config"
	"lexroute/internal/infra/tracer"
)

// ScheduledAction identifies a type of scheduled action.
type ScheduledAction string

const (
	ActionStatsReport   ScheduledAction = "stats_report"
	ActionBreakerReport ScheduledAction = "breaker_report"
)

// taskTimeout bounds a single run of any task.
const taskTimeout = time.Minute

// ScheduledTask defines a recurring task.
type ScheduledTask struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30m"
	Action   ScheduledAction
	OneShot  bool
}

// Scheduler runs tasks on a recurring schedule using cron expressions or durations.
type Scheduler struct {
	cron    *cron.Cron
	actions map[ScheduledAction]func(ctx context.Context) error
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		actions: make(map[ScheduledAction]func(ctx context.Context) error),
		logger:  logger,
	}
}

// RegisterAction registers a handler for a scheduled action type.
func (s *Scheduler) RegisterAction(action ScheduledAction, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask adds a scheduled task. The schedule can be a cron expression or a duration string.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", task.Action, task.Name)
	}

	schedule, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.run(task, fn)
		if task.OneShot {
			s.cron.Remove(entryID)
		}
	}))

	s.logger.Info("task added to scheduler", "name", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

func (s *Scheduler) run(task ScheduledTask, fn func(ctx context.Context) error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		s.logger.Debug("scheduler stopped, skipping task", "task", task.Name)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()
	taskCtx, span := tracer.StartSpan(taskCtx, "scheduler."+string(task.Action))
	defer span.End()
	span.SetAttributes(tracer.StringAttr("task.name", task.Name))

	start := time.Now()
	if err := fn(taskCtx); err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("scheduled task failed",
			"task", task.Name,
			"error", err,
			"duration", time.Since(start))
		return
	}
	tracer.SetOK(span)
	s.logger.Debug("scheduled task completed",
		"task", task.Name,
		"duration", time.Since(start))
}

// Start begins running the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop signals the scheduler to stop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	s.mu.Unlock()

	// Running jobs take the lock to read ctx, so wait without holding it.
	<-s.cron.Stop().Done()
	return nil
}

// Entries returns the number of scheduled entries.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// ParseSchedule tries to parse a schedule string as a cron expression first,
// then falls back to time.ParseDuration.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay(dur), nil
}

// constantDelay fires at a fixed interval. Unlike cron.Every it keeps
// sub-second precision.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// FromConfig builds a scheduler with the report actions registered and
// every configured task added.
func FromConfig(cfg config.SchedulerConfig, reports *Reports, logger *slog.Logger) (*Scheduler, error) {
	s := NewScheduler(logger)
	s.RegisterAction(ActionStatsReport, reports.Stats)
	s.RegisterAction(ActionBreakerReport, reports.Breakers)
	for _, t := range cfg.Tasks {
		if err := s.AddTask(ScheduledTask{
			Name:     t.Name,
			Schedule: t.Schedule,
			Action:   ScheduledAction(t.Action),
			OneShot:  t.OneShot,
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}
