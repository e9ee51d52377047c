package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

func newTestServer(t *testing.T, gen *mockGenerator, rec *mockLoginRecorder) http.Handler {
	t.Helper()
	cfg := Config{
		Generator:      gen,
		Verifier:       &mockVerifier{users: map[string]string{"omar": "1234"}},
		MetricsHandler: http.NotFoundHandler(),
	}
	if rec != nil {
		cfg.LoginRecorder = rec
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s.Handler()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGenerate_Success(t *testing.T) {
	gen := &mockGenerator{res: &domain.GenerationResult{
		Images:       []string{"https://x/1.png"},
		ProviderMeta: map[string]any{"provider": "replicate"},
	}}
	h := newTestServer(t, gen, nil)

	for _, path := range []string{"/api/generate", "/.netlify/functions/generate"} {
		w := do(h, http.MethodPost, path, `{"apiKey":"k","prompt":"p","template":"data:image/png;base64,AAAA","strength":0.4,"outputs":2,"seed":7}`)

		require.Equal(t, http.StatusOK, w.Code, path)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, []any{"https://x/1.png"}, body["images"])
		assert.Equal(t, "replicate", body["providerMeta"].(map[string]any)["provider"])
	}

	require.NotNil(t, gen.input.Strength)
	assert.Equal(t, 0.4, *gen.input.Strength)
	require.NotNil(t, gen.input.Outputs)
	assert.Equal(t, 2, *gen.input.Outputs)
	require.NotNil(t, gen.input.Seed)
	assert.Equal(t, int64(7), *gen.input.Seed)
}

func TestGenerate_ProviderSelection(t *testing.T) {
	gen := &mockGenerator{res: &domain.GenerationResult{Images: []string{"u"}}}
	h := newTestServer(t, gen, nil)

	do(h, http.MethodPost, "/api/generate?provider=flux", `{"prompt":"p"}`)
	assert.Equal(t, "flux", gen.input.Provider)

	do(h, http.MethodPost, "/api/generate?provider=flux", `{"prompt":"p","provider":"gemini"}`)
	assert.Equal(t, "gemini", gen.input.Provider, "ボディの指定を優先するのだ")
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		kind       domain.ErrorKind
		wantStatus int
	}{
		{domain.KindInvalidInput, http.StatusBadRequest},
		{domain.KindRateLimited, http.StatusTooManyRequests},
		{domain.KindProviderWarming, http.StatusServiceUnavailable},
		{domain.KindPollTimedOut, http.StatusRequestTimeout},
		{domain.KindProviderRejected, http.StatusInternalServerError},
		{domain.KindJobFailed, http.StatusInternalServerError},
		{domain.KindNoResult, http.StatusInternalServerError},
		{domain.KindUnexpected, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			gen := &mockGenerator{err: domain.Errorf(tt.kind, "something happened").WithProvider("replicate")}
			w := do(newTestServer(t, gen, nil), http.MethodPost, "/api/generate", `{"prompt":"p"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body.Error, "something happened")
			assert.Equal(t, string(tt.kind), body.Kind)
			assert.Equal(t, tt.kind.Retryable(), body.Retryable)
		})
	}
}

func TestGenerate_RetryAfterHeader(t *testing.T) {
	gen := &mockGenerator{err: domain.Errorf(domain.KindProviderWarming, "loading").WithRetryAfter(1500 * time.Millisecond)}
	w := do(newTestServer(t, gen, nil), http.MethodPost, "/api/generate", `{"prompt":"p"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestGenerate_MalformedBody(t *testing.T) {
	gen := &mockGenerator{}
	w := do(newTestServer(t, gen, nil), http.MethodPost, "/api/generate", `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, gen.calls)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &mockGenerator{}, nil)

	for _, target := range []string{"/api/generate", "/api/login", "/.netlify/functions/generate", "/.netlify/functions/login"} {
		w := do(h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, target)
		assert.Equal(t, "Method Not Allowed", w.Body.String())
	}
}

func TestLogin(t *testing.T) {
	rec := &mockLoginRecorder{}
	h := newTestServer(t, &mockGenerator{}, rec)

	w := do(h, http.MethodPost, "/api/login", `{"username":"omar","password":"1234"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = do(h, http.MethodPost, "/.netlify/functions/login", `{"username":"omar","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, LoginFailedMessage, body["message"])

	w = do(h, http.MethodPost, "/api/login", `oops`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, []bool{true, false}, rec.results)
}

func TestHealthz(t *testing.T) {
	w := do(newTestServer(t, &mockGenerator{}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{Verifier: &mockVerifier{}})
	assert.Error(t, err)
	_, err = NewServer(Config{Generator: &mockGenerator{}})
	assert.Error(t, err)
}
