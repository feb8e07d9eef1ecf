package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlanRepository struct {
	db dbtx
}

func NewPlanRepository(pool *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: pool}
}

const planColumns = `id, name, price_cents, currency, billing_interval, quotas, active`

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var p domain.Plan
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Currency, &p.Interval, &p.Quotas, &p.Active); err != nil {
		return nil, err
	}
	if p.Quotas == nil {
		p.Quotas = map[string]int64{}
	}
	return &p, nil
}

func (r *PlanRepository) Upsert(ctx context.Context, p *domain.Plan) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plans (`+planColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, currency = EXCLUDED.currency,
		   billing_interval = EXCLUDED.billing_interval, quotas = EXCLUDED.quotas, active = EXCLUDED.active`,
		p.ID, p.Name, p.PriceCents, p.Currency, p.Interval, p.Quotas, p.Active,
	)
	return err
}

func (r *PlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPlanNotFound
	}
	return p, err
}

func (r *PlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+planColumns+` FROM plans WHERE active OR NOT $1 ORDER BY price_cents, id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]*domain.Plan, 0)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

type SubscriptionRepository struct {
	db dbtx
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: pool}
}

func NewSubscriptionRepositoryWithTx(tx pgx.Tx) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

const subscriptionColumns = `id, workspace_id, plan_id, status, current_period_start, current_period_end,
	cancel_at_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(&s.ID, &s.WorkspaceID, &s.PlanID, &s.Status, &s.CurrentPeriodStart,
		&s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.WorkspaceID, s.PlanID, s.Status, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.CancelAtPeriodEnd, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *SubscriptionRepository) GetByWorkspace(ctx context.Context, workspaceID string) (*domain.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE workspace_id = $1`, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	return s, err
}

func (r *SubscriptionRepository) Update(ctx context.Context, s *domain.Subscription) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET plan_id = $1, status = $2, current_period_start = $3,
		   current_period_end = $4, cancel_at_period_end = $5, updated_at = $6
		 WHERE id = $7`,
		s.PlanID, s.Status, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// ListExpired returns subscriptions whose period ended at or before now.
func (r *SubscriptionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE current_period_end <= $1 ORDER BY current_period_end LIMIT $2`,
		now, pageSize(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

type UsageRepository struct {
	db dbtx
}

func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: pool}
}

func (r *UsageRepository) Get(ctx context.Context, workspaceID, metric string, periodStart time.Time) (int64, error) {
	var used int64
	err := r.db.QueryRow(ctx,
		`SELECT used FROM usage_counters WHERE workspace_id = $1 AND metric = $2 AND period_start = $3`,
		workspaceID, metric, periodStart,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return used, err
}

// Increment adds n to the counter unless the result would exceed limit
// (a negative limit means unlimited). It returns the new value and whether
// the increment was applied, in a single statement.
func (r *UsageRepository) Increment(ctx context.Context, workspaceID, metric string, periodStart time.Time, n, limit int64) (int64, bool, error) {
	var used int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO usage_counters (workspace_id, metric, period_start, used)
		 SELECT $1::uuid, $2::text, $3::timestamptz, $4::bigint WHERE $5::bigint < 0 OR $4::bigint <= $5::bigint
		 ON CONFLICT (workspace_id, metric, period_start) DO UPDATE
		   SET used = usage_counters.used + EXCLUDED.used
		   WHERE $5::bigint < 0 OR usage_counters.used + EXCLUDED.used <= $5::bigint
		 RETURNING used`,
		workspaceID, metric, periodStart, n, limit,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return used, true, nil
}

// RecordAlert marks a threshold as notified for the period. It returns false
// when the alert had already been recorded.
func (r *UsageRepository) RecordAlert(ctx context.Context, workspaceID, metric string, periodStart time.Time, threshold int) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO usage_alerts (workspace_id, metric, period_start, threshold)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		workspaceID, metric, periodStart, threshold,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
