package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fadedpez/caseclash/internal/logging"
)

// Task represents a scheduled task
type Task struct {
	Name     string
	Schedule string
	Fn       func(context.Context) error
}

// Scheduler runs tasks on cron schedules
type Scheduler struct {
	cron    *cron.Cron
	tasks   []*Task
	running bool
	mutex   sync.Mutex
	cancel  context.CancelFunc
	logger  *logging.Logger
}

// NewScheduler creates a new scheduler evaluating schedules in UTC
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		tasks:  make([]*Task, 0),
		logger: logger.WithField("component", "scheduler"),
	}
}

// AddTask adds a task to the scheduler. schedule is a standard five field
// cron expression or a descriptor such as "@daily" or "@every 30s".
func (s *Scheduler) AddTask(name, schedule string, fn func(context.Context) error) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", schedule, name, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("cannot add task %s while the scheduler is running", name)
	}
	s.tasks = append(s.tasks, &Task{Name: name, Schedule: schedule, Fn: fn})
	return nil
}

// Tasks returns the registered task names in registration order
func (s *Scheduler) Tasks() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	names := make([]string, len(s.tasks))
	for i, task := range s.tasks {
		names[i] = task.Name
	}
	return names
}

// Start runs every task once and then on its schedule until Stop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	for _, task := range s.tasks {
		task := task
		if _, err := s.cron.AddFunc(task.Schedule, func() { s.runTask(ctx, task) }); err != nil {
			cancel()
			return fmt.Errorf("failed to schedule task %s: %w", task.Name, err)
		}
	}

	s.cancel = cancel
	s.running = true

	// Run every task immediately on startup
	for _, task := range s.tasks {
		go s.runTask(ctx, task)
	}
	s.cron.Start()

	s.logger.Info("Scheduler started with %d tasks", len(s.tasks))
	return nil
}

// Stop stops the scheduler and waits for running tasks to return
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

// RunNow runs the named task once, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mutex.Lock()
	var found *Task
	for _, task := range s.tasks {
		if task.Name == name {
			found = task
			break
		}
	}
	s.mutex.Unlock()

	if found == nil {
		return fmt.Errorf("no task named %s", name)
	}
	return found.Fn(ctx)
}

func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	if ctx.Err() != nil {
		return
	}

	logger := s.logger.WithField("task", task.Name)
	logger.Debug("Running scheduled task")

	started := time.Now()
	if err := task.Fn(ctx); err != nil {
		logger.Error("Error running task: %v", err)
		return
	}
	logger.WithField("took", time.Since(started).String()).Debug("Task finished")
}
