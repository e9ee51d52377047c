package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/poller"
)

// PNGの最小構成バイナリ（シグネチャ含む）
var validPng = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90w\x53\xde")

func testSpec() domain.RequestSpec {
	return domain.RequestSpec{
		APIKey:        "test-key",
		Prompt:        "a bottle on a marble table",
		TemplateImage: domain.Image{Data: base64.StdEncoding.EncodeToString(validPng), MIMEType: "image/png"},
		Strength:      0.3,
		OutputCount:   1,
	}
}

func testDeps(client *http.Client) Deps {
	return Deps{
		HTTPClient: client,
		Poller:     &poller.Poller{Interval: time.Millisecond, MaxAttempts: 5},
	}
}

// recorder は受信したリクエストを記録するテスト用サーバーなのだ。
type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

func (rc *recorder) record(r *http.Request) recordedRequest {
	body, _ := io.ReadAll(r.Body)
	req := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone(), Body: body}
	rc.mu.Lock()
	rc.requests = append(rc.requests, req)
	rc.mu.Unlock()
	return req
}

func (rc *recorder) count() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.requests)
}

func (rc *recorder) at(i int) recordedRequest {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.requests[i]
}

// newServer は handler の前にリクエストを記録する httptest サーバーを起動します。
func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, req recordedRequest)) (*httptest.Server, *recorder) {
	t.Helper()
	rc := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := rc.record(r)
		handler(w, r, req)
	}))
	t.Cleanup(srv.Close)
	return srv, rc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("JSON ではないリクエストボディなのだ: %v", err)
	}
	return m
}

// mockGenerator は ContentGenerator のテスト用モックなのだ。
type mockGenerator struct {
	resp  *gemini.Response
	err   error
	calls int
	parts []*genai.Part
	opts  gemini.GenerateOptions
	seeds []*int64
	model string
}

func (m *mockGenerator) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	m.calls++
	m.model = model
	m.parts = parts
	m.opts = opts
	m.seeds = append(m.seeds, opts.Seed)
	return m.resp, m.err
}

func (m *mockGenerator) factory() GeneratorFactory {
	return func(ctx context.Context, apiKey, baseURL string) (ContentGenerator, error) {
		return m, nil
	}
}

func imageResponse(data []byte, mimeType string) *gemini.Response {
	return &gemini.Response{RawResponse: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here is the composed image"},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
	}}
}
