package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/service"
)

type BillingService interface {
	ListPlans(ctx context.Context) ([]*domain.Plan, error)
	GetSubscription(ctx context.Context, workspaceID string) (*service.SubscriptionView, error)
	ChangePlan(ctx context.Context, p domain.Principal, planID string) (*service.SubscriptionView, error)
	CancelSubscription(ctx context.Context, p domain.Principal) (*service.SubscriptionView, error)
	ResumeSubscription(ctx context.Context, p domain.Principal) (*service.SubscriptionView, error)
	GetUsage(ctx context.Context, workspaceID string) ([]domain.Usage, error)
}

type BillingHandler struct {
	svc BillingService
}

func NewBillingHandler(svc BillingService) *BillingHandler {
	return &BillingHandler{svc: svc}
}

type ChangePlanRequest struct {
	PlanID string `json:"plan_id"`
}

type SubscriptionResponse struct {
	ID                 string       `json:"id"`
	WorkspaceID        string       `json:"workspace_id"`
	Status             string       `json:"status"`
	CurrentPeriodStart string       `json:"current_period_start"`
	CurrentPeriodEnd   string       `json:"current_period_end"`
	CancelAtPeriodEnd  bool         `json:"cancel_at_period_end"`
	Plan               *domain.Plan `json:"plan"`
}

func subscriptionToResponse(v *service.SubscriptionView) *SubscriptionResponse {
	s := v.Subscription
	return &SubscriptionResponse{
		ID:                 s.ID,
		WorkspaceID:        s.WorkspaceID,
		Status:             string(s.Status),
		CurrentPeriodStart: formatTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   formatTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		Plan:               v.Plan,
	}
}

func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.ListPlans(r.Context())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	if plans == nil {
		plans = []*domain.Plan{}
	}
	api.Success(w, http.StatusOK, plans)
}

func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetSubscription(r.Context(), p.WorkspaceID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, subscriptionToResponse(view))
}

func (h *BillingHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req ChangePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PlanID == "" {
		api.Error(w, http.StatusBadRequest, "plan_id is required")
		return
	}

	view, err := h.svc.ChangePlan(r.Context(), p, req.PlanID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, subscriptionToResponse(view))
}

func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	view, err := h.svc.CancelSubscription(r.Context(), p)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, subscriptionToResponse(view))
}

func (h *BillingHandler) Resume(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	view, err := h.svc.ResumeSubscription(r.Context(), p)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, subscriptionToResponse(view))
}

func (h *BillingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	usage, err := h.svc.GetUsage(r.Context(), p.WorkspaceID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, usage)
}
