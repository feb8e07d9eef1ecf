// Package handlers implements the HTTP endpoints of the private and public API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/api/middleware"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/cloo-solutions/botstudio/internal/service"
)

const timeFormat = "2006-01-02T15:04:05Z"

// principal returns the authenticated caller or writes 401.
func principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok || p.WorkspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return domain.Principal{}, false
	}
	return p, true
}

// decodeJSON decodes the request body into v or writes 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		if errors.Is(err, io.EOF) {
			api.Error(w, http.StatusBadRequest, "request body is required")
			return false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// listInput reads the cursor and limit query parameters.
func listInput(w http.ResponseWriter, r *http.Request) (service.ListInput, bool) {
	in := service.ListInput{Cursor: r.URL.Query().Get("cursor")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > pagination.MaxLimit {
			api.Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return in, false
		}
		in.Limit = limit
	}
	return in, true
}

func pageResponse[T any, R any](page *pagination.Page[T], convert func(T) R) *api.ListResponse {
	items := make([]R, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return &api.ListResponse{Items: items, NextCursor: page.NextCursor, HasMore: page.HasMore}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
