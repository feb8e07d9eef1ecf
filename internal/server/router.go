package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/api/handlers"
	"github.com/cloo-solutions/botstudio/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes int64 = 5 * 1024 * 1024

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HTTPMetrics instruments requests and exposes the scrape endpoint.
type HTTPMetrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type RouterConfig struct {
	AuthValidator middleware.AuthValidator
	Log           logrus.FieldLogger
	Metrics       HTTPMetrics
	Health        HealthCheck

	WorkspaceHandler    *handlers.WorkspaceHandler
	APIKeyHandler       *handlers.APIKeyHandler
	BotHandler          *handlers.BotHandler
	WidgetHandler       *handlers.WidgetHandler
	KnowledgeHandler    *handlers.KnowledgeHandler
	CatalogHandler      *handlers.CatalogHandler
	GenerationHandler   *handlers.GenerationHandler
	NotificationHandler *handlers.NotificationHandler
	BillingHandler      *handlers.BillingHandler
	ChatHandler         *handlers.ChatHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				api.Error(w, http.StatusServiceUnavailable, "unhealthy")
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Post("/workspaces", cfg.WorkspaceHandler.Create)
		r.Route("/workspace", func(r chi.Router) {
			r.Get("/", cfg.WorkspaceHandler.Get)
			r.Patch("/", cfg.WorkspaceHandler.Rename)
			r.Get("/members", cfg.WorkspaceHandler.ListMembers)
			r.Post("/members", cfg.WorkspaceHandler.AddMember)
			r.Patch("/members/{userID}", cfg.WorkspaceHandler.UpdateMember)
			r.Delete("/members/{userID}", cfg.WorkspaceHandler.RemoveMember)
		})

		r.Route("/apikeys", func(r chi.Router) {
			r.Get("/", cfg.APIKeyHandler.List)
			r.Post("/", cfg.APIKeyHandler.Create)
			r.Delete("/{id}", cfg.APIKeyHandler.Revoke)
		})

		r.Route("/bots", func(r chi.Router) {
			r.Get("/", cfg.BotHandler.List)
			r.Post("/", cfg.BotHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.BotHandler.Get)
				r.Put("/", cfg.BotHandler.Update)
				r.Delete("/", cfg.BotHandler.Delete)

				r.Route("/widget-versions", func(r chi.Router) {
					r.Get("/", cfg.WidgetHandler.List)
					r.Post("/", cfg.WidgetHandler.Create)
					r.Get("/{versionID}", cfg.WidgetHandler.Get)
					r.Put("/{versionID}", cfg.WidgetHandler.Update)
					r.Post("/{versionID}/publish", cfg.WidgetHandler.Publish)
					r.Post("/{versionID}/archive", cfg.WidgetHandler.Archive)
				})
			})
		})

		r.Route("/knowledge-bases", func(r chi.Router) {
			r.Get("/", cfg.KnowledgeHandler.List)
			r.Post("/", cfg.KnowledgeHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.KnowledgeHandler.Get)
				r.Put("/", cfg.KnowledgeHandler.Update)
				r.Delete("/", cfg.KnowledgeHandler.Delete)

				r.Get("/documents", cfg.KnowledgeHandler.ListDocuments)
				r.Post("/documents", cfg.KnowledgeHandler.AddText)
				r.Post("/documents/uploads", cfg.KnowledgeHandler.InitUpload)
				r.Get("/documents/{docID}", cfg.KnowledgeHandler.GetDocument)
				r.Post("/documents/{docID}/complete", cfg.KnowledgeHandler.CompleteUpload)
				r.Delete("/documents/{docID}", cfg.KnowledgeHandler.DeleteDocument)

				r.Post("/crawls", cfg.KnowledgeHandler.StartCrawl)
				r.Get("/crawls/{crawlID}", cfg.KnowledgeHandler.GetCrawl)

				r.Post("/search", cfg.KnowledgeHandler.Search)
			})
		})

		r.Get("/tools", cfg.CatalogHandler.ListTools)
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", cfg.CatalogHandler.ListTemplates)
			r.Post("/", cfg.CatalogHandler.CreateTemplate)
			r.Get("/{id}", cfg.CatalogHandler.GetTemplate)
			r.Put("/{id}", cfg.CatalogHandler.UpdateTemplate)
			r.Delete("/{id}", cfg.CatalogHandler.ArchiveTemplate)
		})

		r.Route("/generation-jobs", func(r chi.Router) {
			r.Get("/", cfg.GenerationHandler.List)
			r.Post("/", cfg.GenerationHandler.Create)
			r.Get("/{id}", cfg.GenerationHandler.Get)
			r.Post("/{id}/cancel", cfg.GenerationHandler.Cancel)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.NotificationHandler.List)
			r.Get("/unread-count", cfg.NotificationHandler.UnreadCount)
			r.Get("/stream", cfg.NotificationHandler.Stream)
			r.Post("/read-all", cfg.NotificationHandler.MarkAllRead)
			r.Post("/{id}/read", cfg.NotificationHandler.MarkRead)
			r.Delete("/{id}", cfg.NotificationHandler.Delete)
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/plans", cfg.BillingHandler.ListPlans)
			r.Get("/subscription", cfg.BillingHandler.GetSubscription)
			r.Put("/subscription", cfg.BillingHandler.ChangePlan)
			r.Post("/subscription/cancel", cfg.BillingHandler.Cancel)
			r.Post("/subscription/resume", cfg.BillingHandler.Resume)
			r.Get("/usage", cfg.BillingHandler.Usage)
		})
	})

	r.Route("/public/bots/{botID}", func(r chi.Router) {
		r.Use(middleware.PublicCORS)
		r.Get("/widget", cfg.ChatHandler.GetWidget)
		r.Post("/sessions", cfg.ChatHandler.StartSession)
		r.Post("/messages", cfg.ChatHandler.SendMessage)
		r.Options("/*", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})

	return r
}
