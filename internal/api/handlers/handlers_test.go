package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/botstudio/internal/api/middleware"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testPrincipal = domain.Principal{WorkspaceID: "ws-1", UserID: "user-1", Role: domain.RoleMember}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newRequest builds a request carrying testPrincipal and the given chi URL params.
func newRequest(method, target string, body any, params map[string]string) *http.Request {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, target, reader)
	ctx := middleware.WithPrincipal(req.Context(), testPrincipal)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = contextWithRoute(ctx, rctx)
	}
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error, body.Code
}

func contextWithRoute(ctx context.Context, rctx *chi.Context) context.Context {
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}
