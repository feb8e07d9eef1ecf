package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
	"github.com/sirupsen/logrus"
)

type PlanRepository interface {
	Upsert(ctx context.Context, p *domain.Plan) error
	GetByID(ctx context.Context, id string) (*domain.Plan, error)
	List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error)
}

type SubscriptionRepository interface {
	Create(ctx context.Context, s *domain.Subscription) error
	GetByWorkspace(ctx context.Context, workspaceID string) (*domain.Subscription, error)
	Update(ctx context.Context, s *domain.Subscription) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error)
}

type UsageRepository interface {
	Get(ctx context.Context, workspaceID, metric string, periodStart time.Time) (int64, error)
	Increment(ctx context.Context, workspaceID, metric string, periodStart time.Time, n, limit int64) (int64, bool, error)
	RecordAlert(ctx context.Context, workspaceID, metric string, periodStart time.Time, threshold int) (bool, error)
}

// CountFunc returns the current number of a counted resource in a workspace.
type CountFunc func(ctx context.Context, workspaceID string) (int64, error)

// SubscriptionView is a subscription together with its plan.
type SubscriptionView struct {
	Subscription *domain.Subscription
	Plan         *domain.Plan
}

const rolloverBatchSize = 100

// BillingService enforces plan quotas and manages subscriptions.
type BillingService struct {
	plans    PlanRepository
	subs     SubscriptionRepository
	usage    UsageRepository
	members  MemberRepository
	notifier NotificationSender
	counters map[string]CountFunc
	log      logrus.FieldLogger
}

func NewBillingService(
	plans PlanRepository,
	subs SubscriptionRepository,
	usage UsageRepository,
	members MemberRepository,
	notifier NotificationSender,
	log logrus.FieldLogger,
) *BillingService {
	return &BillingService{
		plans:    plans,
		subs:     subs,
		usage:    usage,
		members:  members,
		notifier: notifier,
		counters: make(map[string]CountFunc),
		log:      log.WithField("component", "billing"),
	}
}

// RegisterCounter wires the source of a counted metric for usage reporting.
func (s *BillingService) RegisterCounter(metric string, fn CountFunc) {
	s.counters[metric] = fn
}

func (s *BillingService) ListPlans(ctx context.Context) ([]*domain.Plan, error) {
	return s.plans.List(ctx, true)
}

// SeedPlans installs or refreshes the default plans.
func (s *BillingService) SeedPlans(ctx context.Context) ([]*domain.Plan, error) {
	defaults := domain.DefaultPlans()
	out := make([]*domain.Plan, 0, len(defaults))
	for i := range defaults {
		p := &defaults[i]
		if err := s.plans.Upsert(ctx, p); err != nil {
			return nil, fmt.Errorf("seed plan %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *BillingService) GetSubscription(ctx context.Context, workspaceID string) (*SubscriptionView, error) {
	sub, err := s.subs.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return &SubscriptionView{Subscription: sub, Plan: plan}, nil
}

// ChangePlan moves the workspace to planID and starts a new billing period.
func (s *BillingService) ChangePlan(ctx context.Context, p domain.Principal, planID string) (*SubscriptionView, error) {
	ctx, span := telemetry.StartSpan(ctx, "BillingService.ChangePlan", telemetry.SpanAttributes{
		WorkspaceID: p.WorkspaceID,
		ResourceID:  planID,
		Operation:   "change_plan",
	})
	defer span.End()

	if err := requireManager(p); err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, domain.ValidationError("plan %s is not available", planID)
	}

	sub, err := s.subs.GetByWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		return nil, err
	}

	start := utcNow()
	sub.PlanID = plan.ID
	sub.Status = domain.SubscriptionStatusActive
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = domain.NextPeriodEnd(start, plan.Interval)
	sub.CancelAtPeriodEnd = false
	sub.UpdatedAt = start
	if err := s.subs.Update(ctx, sub); err != nil {
		span.SetError(err)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"workspace_id": p.WorkspaceID, "plan_id": plan.ID}).Info("plan changed")
	return &SubscriptionView{Subscription: sub, Plan: plan}, nil
}

// CancelSubscription schedules a downgrade to the free plan at the end of the period.
func (s *BillingService) CancelSubscription(ctx context.Context, p domain.Principal) (*SubscriptionView, error) {
	return s.setCancelAtPeriodEnd(ctx, p, true)
}

// ResumeSubscription clears a scheduled cancellation.
func (s *BillingService) ResumeSubscription(ctx context.Context, p domain.Principal) (*SubscriptionView, error) {
	return s.setCancelAtPeriodEnd(ctx, p, false)
}

func (s *BillingService) setCancelAtPeriodEnd(ctx context.Context, p domain.Principal, cancel bool) (*SubscriptionView, error) {
	if err := requireManager(p); err != nil {
		return nil, err
	}
	view, err := s.GetSubscription(ctx, p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	sub := view.Subscription
	if sub.Status == domain.SubscriptionStatusCancelled {
		return nil, domain.ErrSubscriptionCancelled
	}
	if sub.CancelAtPeriodEnd == cancel {
		return view, nil
	}
	sub.CancelAtPeriodEnd = cancel
	sub.UpdatedAt = utcNow()
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	return view, nil
}

// Meter consumes n units of a per-period metric. It fails with a quota error
// and leaves the counter untouched when the plan limit would be exceeded.
func (s *BillingService) Meter(ctx context.Context, workspaceID, metric string, n int64) error {
	view, err := s.GetSubscription(ctx, workspaceID)
	if err != nil {
		return err
	}
	if view.Subscription.Status == domain.SubscriptionStatusCancelled {
		return domain.ErrSubscriptionCancelled
	}

	limit := view.Plan.Quota(metric)
	period := view.Subscription.CurrentPeriodStart
	used, ok, err := s.usage.Increment(ctx, workspaceID, metric, period, n, limit)
	if err != nil {
		return err
	}
	if !ok {
		return domain.QuotaExceeded(metric, limit)
	}

	for _, pct := range domain.CrossedThresholds(used-n, used, limit) {
		s.alert(ctx, workspaceID, metric, period, pct, used, limit)
	}
	return nil
}

// CheckCountLimit fails when creating one more resource would exceed the plan limit.
func (s *BillingService) CheckCountLimit(ctx context.Context, workspaceID, metric string, current int64) error {
	view, err := s.GetSubscription(ctx, workspaceID)
	if err != nil {
		return err
	}
	limit := view.Plan.Quota(metric)
	if limit >= 0 && current+1 > limit {
		return domain.QuotaExceeded(metric, limit)
	}
	return nil
}

// GetUsage reports consumption of every metric for the current period.
func (s *BillingService) GetUsage(ctx context.Context, workspaceID string) ([]domain.Usage, error) {
	view, err := s.GetSubscription(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Usage, 0, len(domain.AllMetrics()))
	for _, metric := range domain.AllMetrics() {
		var used int64
		if domain.IsMeteredMetric(metric) {
			used, err = s.usage.Get(ctx, workspaceID, metric, view.Subscription.CurrentPeriodStart)
		} else if fn, ok := s.counters[metric]; ok {
			used, err = fn(ctx, workspaceID)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Usage{Metric: metric, Used: used, Limit: view.Plan.Quota(metric)})
	}
	return out, nil
}

// Rollover advances every subscription whose period has ended. Subscriptions
// scheduled for cancellation fall back to the free plan.
func (s *BillingService) Rollover(ctx context.Context, at time.Time) (int, error) {
	total := 0
	for {
		expired, err := s.subs.ListExpired(ctx, at, rolloverBatchSize)
		if err != nil {
			return total, err
		}
		for _, sub := range expired {
			if err := s.rollover(ctx, sub, at); err != nil {
				return total, fmt.Errorf("rollover subscription %s: %w", sub.ID, err)
			}
			total++
		}
		if len(expired) < rolloverBatchSize {
			return total, nil
		}
	}
}

func (s *BillingService) rollover(ctx context.Context, sub *domain.Subscription, at time.Time) error {
	if sub.CancelAtPeriodEnd || sub.Status == domain.SubscriptionStatusCancelled {
		sub.PlanID = domain.FreePlanID
		sub.CancelAtPeriodEnd = false
		sub.Status = domain.SubscriptionStatusActive
	}
	plan, err := s.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}

	start := sub.CurrentPeriodEnd
	end := domain.NextPeriodEnd(start, plan.Interval)
	for !end.After(at) {
		start = end
		end = domain.NextPeriodEnd(start, plan.Interval)
	}
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	sub.UpdatedAt = at
	return s.subs.Update(ctx, sub)
}

func (s *BillingService) alert(ctx context.Context, workspaceID, metric string, period time.Time, pct int, used, limit int64) {
	log := s.log.WithFields(logrus.Fields{"workspace_id": workspaceID, "metric": metric, "threshold": pct})

	first, err := s.usage.RecordAlert(ctx, workspaceID, metric, period, pct)
	if err != nil {
		log.WithError(err).Warn("failed to record usage alert")
		return
	}
	if !first || s.notifier == nil {
		return
	}

	owners, err := s.members.ListByRole(ctx, workspaceID, domain.RoleOwner)
	if err != nil {
		log.WithError(err).Warn("failed to load workspace owners")
		return
	}

	kind, title := domain.NotificationUsageWarning, fmt.Sprintf("You have used %d%% of your %s quota", pct, metric)
	if pct >= 100 {
		kind, title = domain.NotificationUsageExceeded, fmt.Sprintf("Your %s quota is used up", metric)
	}
	for _, owner := range owners {
		_, err := s.notifier.Send(ctx, NotifyInput{
			WorkspaceID: workspaceID,
			UserID:      owner.UserID,
			Type:        kind,
			Title:       title,
			Body:        fmt.Sprintf("%d of %d %s used in the current billing period.", used, limit, metric),
			Data:        map[string]any{"metric": metric, "used": used, "limit": limit, "threshold": pct},
		})
		if err != nil {
			log.WithError(err).WithField("user_id", owner.UserID).Warn("failed to send usage notification")
		}
	}
}
