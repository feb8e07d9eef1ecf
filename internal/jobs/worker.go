package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// JobProcessor handles one poll: it claims whatever is due and processes it.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a JobProcessor on a fixed interval until stopped.
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	log          logrus.FieldLogger
	stopChan     chan struct{}
	doneChan     chan struct{}
}

func NewWorker(name string, processor JobProcessor, pollInterval time.Duration, log logrus.FieldLogger) *Worker {
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		log:          log.WithFields(logrus.Fields{"component": "worker", "worker": name}),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start polls once immediately and then on every tick. It blocks until ctx
// is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	w.log.WithField("poll_interval", w.pollInterval.String()).Info("worker started")
	w.poll(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			w.log.Info("worker stopped: stop signal received")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll runs the processor once. A panic is logged and the loop carries on.
func (w *Worker) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithError(fmt.Errorf("panic: %v", r)).Error("job processor panicked")
		}
	}()

	if err := w.processor.ProcessJobs(ctx); err != nil {
		w.log.WithError(err).Error("error processing jobs")
	}
}

// Stop signals the loop and waits for the current poll to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
