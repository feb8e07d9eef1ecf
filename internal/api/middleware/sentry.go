package middleware

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

// Query parameters that carry credentials.
var secretParams = []string{"access_token"}

func redactQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	q := u.Query()
	for _, name := range secretParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
		}
	}
	return q.Encode()
}

// SentryMiddleware runs each request in its own hub and transaction. Panics are
// reported and re-raised for the recoverer. Without a Sentry client it only
// costs the bookkeeping.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		transactionName := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		options := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
		}

		if sentryTrace := r.Header.Get("sentry-trace"); sentryTrace != "" {
			options = append(options, sentry.ContinueFromHeaders(sentryTrace, r.Header.Get("baggage")))
		}

		transaction := sentry.StartTransaction(r.Context(), transactionName, options...)
		defer transaction.Finish()

		var principal principalSlot
		ctx := sentry.SetHubOnContext(transaction.Context(), hub)
		ctx = withPrincipalSlot(ctx, &principal)
		r = r.WithContext(ctx)

		hub.Scope().SetContext("request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"query":       redactQuery(r.URL),
			"remote_addr": r.RemoteAddr,
		})

		if requestID := GetRequestID(r.Context()); requestID != "" {
			hub.Scope().SetTag("request_id", requestID)
			transaction.SetTag("request_id", requestID)
		}

		if userAgent := r.UserAgent(); userAgent != "" {
			hub.Scope().SetTag("user_agent", userAgent)
		}

		defer func() {
			if err := recover(); err != nil {
				transaction.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), err)
				panic(err)
			}
		}()

		rec := &sentryResponseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		transaction.Status = httpStatusToSpanStatus(status)
		// Name the transaction after the route so ids do not fan out into
		// separate transactions.
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				transaction.Name = r.Method + " " + pattern
			}
		}
		transaction.SetData("http.response.status_code", status)

		// The principal is only known once auth has run further down the chain.
		if principal.set {
			hub.Scope().SetTag("workspace_id", principal.p.WorkspaceID)
			hub.Scope().SetUser(sentry.User{ID: principal.p.UserID})
			transaction.SetTag("workspace_id", principal.p.WorkspaceID)
		}

		if status >= 500 {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)))
		}
	})
}

var spanStatuses = map[int]sentry.SpanStatus{
	http.StatusSwitchingProtocols: sentry.SpanStatusOK,
	http.StatusBadRequest:         sentry.SpanStatusInvalidArgument,
	http.StatusUnauthorized:       sentry.SpanStatusUnauthenticated,
	http.StatusPaymentRequired:    sentry.SpanStatusResourceExhausted,
	http.StatusForbidden:          sentry.SpanStatusPermissionDenied,
	http.StatusNotFound:           sentry.SpanStatusNotFound,
	http.StatusConflict:           sentry.SpanStatusAlreadyExists,
	http.StatusTooManyRequests:    sentry.SpanStatusResourceExhausted,
	499:                           sentry.SpanStatusCanceled,
	http.StatusNotImplemented:     sentry.SpanStatusUnimplemented,
	http.StatusServiceUnavailable: sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:     sentry.SpanStatusDeadlineExceeded,
}

func httpStatusToSpanStatus(status int) sentry.SpanStatus {
	if s, ok := spanStatuses[status]; ok {
		return s
	}
	switch {
	case status >= 500:
		return sentry.SpanStatusInternalError
	case status >= 400:
		return sentry.SpanStatusInvalidArgument
	case status >= 200 && status < 300:
		return sentry.SpanStatusOK
	}
	return sentry.SpanStatusUnknown
}

// sentryResponseRecorder wraps http.ResponseWriter to capture status code
type sentryResponseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *sentryResponseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *sentryResponseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *sentryResponseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *sentryResponseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}
