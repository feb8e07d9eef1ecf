package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

// AccessLog emits one structured log entry per HTTP request.
func AccessLog(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			// Auth runs inside next; it reports the principal back through this pointer.
			var principal principalSlot
			next.ServeHTTP(rec, r.WithContext(withPrincipalSlot(r.Context(), &principal)))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}

			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": clientIP(r),
				"user_agent":  r.UserAgent(),
			}
			if id := GetRequestID(r.Context()); id != "" {
				fields["request_id"] = id
			}
			if principal.set {
				fields["workspace_id"] = principal.p.WorkspaceID
				fields["user_id"] = principal.p.UserID
			}

			entry := log.WithFields(fields)
			switch {
			case status >= 500:
				entry.Error("request")
			case status >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
