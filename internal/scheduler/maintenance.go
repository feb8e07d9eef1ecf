package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type PeriodRoller interface {
	Rollover(ctx context.Context, at time.Time) (int, error)
}

type NotificationPurger interface {
	PurgeRead(ctx context.Context, retention time.Duration) (int64, error)
}

type StuckJobReaper interface {
	ReapStuck(ctx context.Context, timeout time.Duration) (int, error)
}

// MaintenanceConfig wires the periodic jobs of the API process.
type MaintenanceConfig struct {
	Billing               PeriodRoller
	Notifications         NotificationPurger
	Generations           StuckJobReaper
	NotificationRetention time.Duration
	GenerationTimeout     time.Duration
}

// Schedules of the maintenance tasks.
const (
	RolloverSchedule  = "*/5 * * * *"
	RetentionSchedule = "17 3 * * *"
	ReaperSchedule    = "*/10 * * * *"
)

// RegisterMaintenance adds billing rollover, notification retention and the
// stuck generation reaper to s.
func RegisterMaintenance(s *Scheduler, cfg MaintenanceConfig) error {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = time.Hour
	}

	if cfg.Billing != nil {
		err := s.Add("billing_rollover", RolloverSchedule, func(ctx context.Context) error {
			n, err := cfg.Billing.Rollover(ctx, time.Now().UTC())
			if n > 0 {
				s.log.WithField("subscriptions", n).Info("rolled over billing periods")
			}
			return err
		})
		if err != nil {
			return err
		}
	}

	if cfg.Notifications != nil && cfg.NotificationRetention > 0 {
		err := s.Add("notification_retention", RetentionSchedule, func(ctx context.Context) error {
			n, err := cfg.Notifications.PurgeRead(ctx, cfg.NotificationRetention)
			if n > 0 {
				s.log.WithField("deleted", n).Info("purged read notifications")
			}
			return err
		})
		if err != nil {
			return err
		}
	}

	if cfg.Generations != nil {
		err := s.Add("generation_reaper", ReaperSchedule, func(ctx context.Context) error {
			n, err := cfg.Generations.ReapStuck(ctx, cfg.GenerationTimeout)
			if n > 0 {
				s.log.WithFields(logrus.Fields{"jobs": n, "timeout": cfg.GenerationTimeout.String()}).Warn("failed stuck generation jobs")
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
