package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// GenerationRelayer re-enqueues generation jobs stuck in pending.
type GenerationRelayer interface {
	RelayPending(ctx context.Context, grace time.Duration) (int, error)
}

// GenerationRelay is the JobProcessor that keeps pending generation jobs moving
// when the broker was unavailable at creation time.
type GenerationRelay struct {
	relayer GenerationRelayer
	grace   time.Duration
	log     logrus.FieldLogger
}

func NewGenerationRelay(relayer GenerationRelayer, grace time.Duration, log logrus.FieldLogger) *GenerationRelay {
	return &GenerationRelay{
		relayer: relayer,
		grace:   grace,
		log:     log.WithField("component", "generation_relay"),
	}
}

func (r *GenerationRelay) ProcessJobs(ctx context.Context) error {
	n, err := r.relayer.RelayPending(ctx, r.grace)
	if err != nil {
		return err
	}
	if n > 0 {
		r.log.WithField("count", n).Info("re-enqueued pending generation jobs")
	}
	return nil
}
