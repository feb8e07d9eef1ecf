// Package scheduler runs periodic maintenance tasks on cron schedules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TaskFunc is the function signature for scheduled tasks
type TaskFunc func(ctx context.Context) error

const taskTimeout = 30 * time.Minute

// Scheduler wraps robfig/cron with named tasks and logging.
type Scheduler struct {
	cron    *cron.Cron
	log     logrus.FieldLogger
	tasks   map[string]cron.EntryID
	mu      sync.RWMutex
	running bool
}

func New(log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:   log.WithField("component", "scheduler"),
		tasks: make(map[string]cron.EntryID),
	}
}

// Add registers task under name using a standard five-field cron spec or a
// descriptor such as "@every 5m". An existing task with the same name is replaced.
func (s *Scheduler) Add(name, spec string, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.tasks[name]; ok {
		s.cron.Remove(id)
		delete(s.tasks, name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name, task) })
	if err != nil {
		return err
	}
	s.tasks[name] = id
	s.log.WithFields(logrus.Fields{"task": name, "schedule": spec}).Info("scheduled task")
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop waits for running tasks to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
	s.running = false
}

// Tasks returns the registered task names.
func (s *Scheduler) Tasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) run(name string, task TaskFunc) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	log := s.log.WithField("task", name)
	if err := task(ctx); err != nil {
		log.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).Error("scheduled task failed")
		return
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("scheduled task completed")
}
