package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

// maxResponseBytes はプロバイダー応答の読み込み上限です。
const maxResponseBytes = 64 << 20

// errorMessagePaths はプロバイダーごとに異なるエラーメッセージの位置です。
var errorMessagePaths = []string{"detail", "error.message", "error", "message", "errors.0", "title"}

// httpResponse は読み込み済みの 2xx 応答です。
type httpResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// ContentType は Content-Type のメディアタイプ部分を返します。
func (r *httpResponse) ContentType() string {
	mt, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// httpCaller はプロバイダー HTTP API の呼び出しとエラー分類を担当します。
type httpCaller struct {
	client   *http.Client
	provider string
}

func newHTTPCaller(client *http.Client, provider string) *httpCaller {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpCaller{client: client, provider: provider}
}

// postJSON は payload を JSON で送信します。
func (c *httpCaller) postJSON(ctx context.Context, url string, header http.Header, payload any) (*httpResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnexpected, err, "failed to encode request").WithProvider(c.provider)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.Wrap(domain.KindUnexpected, err, "failed to build request").WithProvider(c.provider)
	}
	copyHeader(req.Header, header)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// get はステータス確認などの GET を送信します。
func (c *httpCaller) get(ctx context.Context, url string, header http.Header) (*httpResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnexpected, err, "failed to build request").WithProvider(c.provider)
	}
	copyHeader(req.Header, header)
	return c.do(req)
}

// do はリクエストを送信し、2xx 以外を GenerationError に分類します。
func (c *httpCaller) do(req *http.Request) (*httpResponse, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.transportError(req.Context(), err, "request to provider failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(req.Context(), err, "failed to read provider response")
	}

	slog.DebugContext(req.Context(), "プロバイダー応答を受信しました",
		"provider", c.provider,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(c.provider, resp.StatusCode, resp.Header, body)
	}
	return &httpResponse{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// transportError は通信エラーを分類します。リクエストのデッドライン超過は
// ポーリング中と同じく PollTimedOut、それ以外は Unexpected です。
func (c *httpCaller) transportError(ctx context.Context, err error, message string) *domain.GenerationError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Wrap(domain.KindPollTimedOut, err, "request deadline exceeded").WithProvider(c.provider)
	}
	return domain.Wrap(domain.KindUnexpected, err, message).WithProvider(c.provider)
}

// classifyStatus は 2xx 以外の応答を ErrorKind に分類します。
//
// 429 は RateLimited、503 またはモデル読み込み中を示す本文は ProviderWarming、
// それ以外は ProviderRejected です。
func classifyStatus(provider string, status int, header http.Header, body []byte) *domain.GenerationError {
	msg := providerMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	var ge *domain.GenerationError
	switch {
	case status == http.StatusTooManyRequests:
		ge = domain.Errorf(domain.KindRateLimited, "rate limited (HTTP %d)", status)
	case status == http.StatusServiceUnavailable || isLoading(body):
		ge = domain.Errorf(domain.KindProviderWarming, "model is loading (HTTP %d)", status)
	default:
		ge = domain.Errorf(domain.KindProviderRejected, "request rejected (HTTP %d)", status)
	}
	ge = ge.WithProvider(provider).WithDetail(msg)
	if d := retryAfter(header, body); d > 0 {
		ge = ge.WithRetryAfter(d)
	}
	return ge
}

// providerMessage は本文からエラーメッセージを取り出します。JSON でなければ本文を短く切って返します。
func providerMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !gjson.ValidBytes(body) {
		return truncate(strings.TrimSpace(string(body)), 300)
	}
	for _, path := range errorMessagePaths {
		r := gjson.GetBytes(body, path)
		if !r.Exists() {
			continue
		}
		if r.IsObject() {
			// {"errors": [{"message": ...}]} のような入れ子
			if m := r.Get("message"); m.Exists() {
				return m.String()
			}
			continue
		}
		if s := strings.TrimSpace(r.String()); s != "" {
			return truncate(s, 300)
		}
	}
	return ""
}

// isLoading はモデルの読み込み中 (コールドスタート) を示す本文かどうかを返します。
func isLoading(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	if gjson.GetBytes(body, "estimated_time").Exists() {
		return true
	}
	return strings.Contains(strings.ToLower(gjson.GetBytes(body, "error").String()), "currently loading")
}

// retryAfter は Retry-After ヘッダー、または本文の estimated_time (秒) から待機時間を求めます。
func retryAfter(header http.Header, body []byte) time.Duration {
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d.Round(time.Second)
			}
		}
	}
	if gjson.ValidBytes(body) {
		if est := gjson.GetBytes(body, "estimated_time").Float(); est > 0 {
			return time.Duration(est * float64(time.Second)).Round(time.Second)
		}
	}
	return 0
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// joinURL は base と path を 1 つのスラッシュで連結します。
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// decodeJSON は 2xx 応答の本文が JSON であることを確認します。
func (c *httpCaller) decodeJSON(resp *httpResponse) (gjson.Result, error) {
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, domain.Errorf(domain.KindUnexpected, "provider returned a non-JSON response").
			WithProvider(c.provider).WithDetail(fmt.Sprintf("content-type %q", resp.ContentType()))
	}
	return gjson.ParseBytes(resp.Body), nil
}
