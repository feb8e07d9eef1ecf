package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (*domain.Principal, error)
}

// APIKeyAuth resolves the bearer API key to a principal and stores it in the request context.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok && isWebSocketUpgrade(r) {
				// Browsers cannot set headers on websocket handshakes.
				token = r.URL.Query().Get("access_token")
				ok = token != ""
			}
			if !ok {
				if r.Header.Get("Authorization") == "" {
					api.Error(w, http.StatusUnauthorized, "missing authorization header")
				} else {
					api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				}
				return
			}

			principal, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				if domain.CodeOf(err) == domain.ErrCodeUnauthorized {
					api.Error(w, http.StatusUnauthorized, "invalid api key")
					return
				}
				api.HandleError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *principal)))
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(domain.Principal)
	return p, ok
}

func GetWorkspaceID(ctx context.Context) string {
	p, _ := GetPrincipal(ctx)
	return p.WorkspaceID
}

const principalSlotKey contextKey = "principal_slot"

// principalSlot lets outer middleware observe the principal resolved further down the chain.
type principalSlot struct {
	p      domain.Principal
	set    bool
	parent *principalSlot
}

func withPrincipalSlot(ctx context.Context, slot *principalSlot) context.Context {
	slot.parent, _ = ctx.Value(principalSlotKey).(*principalSlot)
	return context.WithValue(ctx, principalSlotKey, slot)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	for slot, _ := ctx.Value(principalSlotKey).(*principalSlot); slot != nil; slot = slot.parent {
		slot.p = p
		slot.set = true
	}
	return context.WithValue(ctx, PrincipalKey, p)
}
