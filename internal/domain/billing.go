package domain

import (
	"fmt"
	"time"
)

// Usage metrics. Generations and chat messages are metered per billing
// period; bots and knowledge documents are counted resources.
const (
	MetricGenerations        = "generations"
	MetricChatMessages       = "chat_messages"
	MetricBots               = "bots"
	MetricKnowledgeDocuments = "knowledge_documents"
)

// Unlimited marks a quota without a ceiling.
const Unlimited int64 = -1

// FreePlanID is assigned to new workspaces and to lapsed subscriptions.
const FreePlanID = "free"

// Plan is a priced bundle of quotas.
type Plan struct {
	ID         string           `json:"id" yaml:"id"`
	Name       string           `json:"name" yaml:"name"`
	PriceCents int64            `json:"price_cents" yaml:"price_cents"`
	Currency   string           `json:"currency" yaml:"currency"`
	Interval   string           `json:"interval" yaml:"interval"`
	Quotas     map[string]int64 `json:"quotas" yaml:"quotas"`
	Active     bool             `json:"active" yaml:"active"`
}

// Quota returns the limit for a metric. Metrics absent from the plan are unlimited.
func (p *Plan) Quota(metric string) int64 {
	q, ok := p.Quotas[metric]
	if !ok {
		return Unlimited
	}
	return q
}

// SubscriptionStatus is the billing state of a workspace
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription binds a workspace to a plan for a billing period.
type Subscription struct {
	ID                 string
	WorkspaceID        string
	PlanID             string
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UsageCounter counts a metered metric within one billing period.
type UsageCounter struct {
	WorkspaceID string
	Metric      string
	PeriodStart time.Time
	Used        int64
}

// Usage is the reported consumption of one metric.
type Usage struct {
	Metric string `json:"metric"`
	Used   int64  `json:"used"`
	Limit  int64  `json:"limit"`
}

// IsMeteredMetric reports whether a metric is counted per billing period.
func IsMeteredMetric(metric string) bool {
	return metric == MetricGenerations || metric == MetricChatMessages
}

// AllMetrics lists every metric in reporting order.
func AllMetrics() []string {
	return []string{MetricGenerations, MetricChatMessages, MetricBots, MetricKnowledgeDocuments}
}

// NextPeriodEnd returns the end of a billing period that starts at start.
func NextPeriodEnd(start time.Time, interval string) time.Time {
	if interval == "year" {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// QuotaExceeded returns an error that matches ErrQuotaExceeded and names the metric.
func QuotaExceeded(metric string, limit int64) error {
	return NewDomainErrorWithCause(ErrCodeQuotaExceeded, ErrQuotaExceeded.Message,
		fmt.Errorf("%s limit of %d reached for the current plan", metric, limit))
}

// CrossedThresholds returns the usage percentages (80, 100) passed when usage
// moves from before to after against limit.
func CrossedThresholds(before, after, limit int64) []int {
	if limit <= 0 {
		return nil
	}
	var out []int
	for _, pct := range []int{80, 100} {
		mark := (limit*int64(pct) + 99) / 100
		if before < mark && after >= mark {
			out = append(out, pct)
		}
	}
	return out
}

// DefaultPlans are installed by `plan seed`.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID: FreePlanID, Name: "Free", PriceCents: 0, Currency: "usd", Interval: "month", Active: true,
			Quotas: map[string]int64{
				MetricGenerations: 50, MetricChatMessages: 500, MetricBots: 1, MetricKnowledgeDocuments: 20,
			},
		},
		{
			ID: "pro", Name: "Pro", PriceCents: 2900, Currency: "usd", Interval: "month", Active: true,
			Quotas: map[string]int64{
				MetricGenerations: 2000, MetricChatMessages: 20000, MetricBots: 10, MetricKnowledgeDocuments: 1000,
			},
		},
		{
			ID: "business", Name: "Business", PriceCents: 9900, Currency: "usd", Interval: "month", Active: true,
			Quotas: map[string]int64{
				MetricGenerations: Unlimited, MetricChatMessages: 200000, MetricBots: Unlimited, MetricKnowledgeDocuments: Unlimited,
			},
		},
	}
}
