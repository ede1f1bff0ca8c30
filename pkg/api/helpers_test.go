package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/apikey"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/secrets"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/session"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/token"
)

// allowAllChecker satisfies apikey.PermissionChecker for tests that are not
// about scope enforcement.
type allowAllChecker struct{}

func (allowAllChecker) CheckPermission(userID, action, resource string) bool { return true }

func newTestTokenService(t *testing.T) *token.Service {
	t.Helper()
	keys := secrets.NewStaticProvider()
	err := keys.SetKey(token.DefaultKeyApp, secrets.Key{
		ID:     "test-key",
		Secret: []byte("0123456789abcdef0123456789abcdef"),
	})
	require.NoError(t, err)
	return token.NewService(keys, token.WithIssuer("authd-test"))
}

func newTestSessionManager() *session.Manager {
	return session.NewManager(session.NewMemoryStore())
}

func newTestKeyEngine(opts ...apikey.Option) *apikey.Engine {
	return apikey.NewEngine(apikey.NewMemoryStore(), allowAllChecker{}, quota.NewMemoryCounter(), opts...)
}

// fixedClock pins engine time so rate-limit windows cannot roll over in the
// middle of a test.
func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	return func() time.Time { return at }
}

// doJSON runs a JSON request through the router and decodes the response
// body into a generic map. A nil body sends an empty request.
func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

// assertRoutes verifies each method/path pair matches a registered route.
func assertRoutes(t *testing.T, router *mux.Router, routes []struct {
	method string
	path   string
}) {
	t.Helper()
	for _, tt := range routes {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			if !router.Match(req, &match) {
				t.Errorf("route %s %s should be registered", tt.method, tt.path)
			}
		})
	}
}

// mustStatus fails the test immediately on an unexpected status so later
// body assertions do not cascade.
func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, w.Code, "response body: %s", w.Body.String())
}
