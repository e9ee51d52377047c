// Package normalize はプロバイダーごとに異なる出力形式を GenerationResult に揃えます。
package normalize

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/imgutil"
)

// Fetcher は URL から画像バイト列を取得します。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Normalizer はステートレスで、並行利用できます。
type Normalizer struct {
	fetcher Fetcher
	// Inline が true の場合、URL 出力を取得して data URI に埋め込みます。
	Inline bool
}

// New は Normalizer を生成します。fetcher が nil の場合 Inline は無視されます。
func New(fetcher Fetcher, inline bool) *Normalizer {
	return &Normalizer{fetcher: fetcher, Inline: inline}
}

// FromURLs はプロバイダーが返した URL をそのまま順序を保って結果にします。
func (n *Normalizer) FromURLs(ctx context.Context, urls []string, meta map[string]any) (*domain.GenerationResult, error) {
	images := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if n.Inline && n.fetcher != nil && !imgutil.IsDataURI(u) {
			inlined, err := n.inline(ctx, u)
			if err != nil {
				return nil, err
			}
			u = inlined
		}
		images = append(images, u)
	}
	if len(images) == 0 {
		return nil, domain.Errorf(domain.KindNoResult, "provider returned no images")
	}
	return build(images, meta), nil
}

func (n *Normalizer) inline(ctx context.Context, url string) (string, error) {
	data, err := n.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return "", domain.Wrap(domain.KindUnexpected, err, "failed to download generated image")
	}
	mimeType, err := imgutil.DetectMIME(data)
	if err != nil {
		return "", domain.Wrap(domain.KindNoResult, err, "generated output is not an image")
	}
	slog.DebugContext(ctx, "生成画像を data URI に変換しました", "bytes", len(data), "mime_type", mimeType)
	return imgutil.EncodeDataURI(mimeType, data), nil
}

// FromBinary は画像バイト列を data URI 1 件の結果にします。
// declaredMIME が image/* でない場合は内容から判定します。
func (n *Normalizer) FromBinary(data []byte, declaredMIME string, meta map[string]any) (*domain.GenerationResult, error) {
	if len(data) == 0 {
		return nil, domain.Errorf(domain.KindNoResult, "provider returned an empty body")
	}
	mimeType := mediaType(declaredMIME)
	if !strings.HasPrefix(mimeType, "image/") {
		detected, err := imgutil.DetectMIME(data)
		if err != nil {
			return nil, domain.Wrap(domain.KindNoResult, err, "provider output is not an image")
		}
		mimeType = detected
	}
	return build([]string{imgutil.EncodeDataURI(mimeType, data)}, meta), nil
}

// FromBase64 は JSON 内に埋め込まれた base64 画像を結果にします。
func (n *Normalizer) FromBase64(b64, declaredMIME string, meta map[string]any) (*domain.GenerationResult, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return nil, domain.Errorf(domain.KindNoResult, "provider returned no image data")
	}
	if imgutil.IsDataURI(b64) {
		mimeType, payload, err := imgutil.DecodeDataURI(b64)
		if err != nil {
			return nil, domain.Wrap(domain.KindNoResult, err, "provider returned a malformed data URI")
		}
		return n.FromBinary(payload, mimeType, meta)
	}
	data, err := imgutil.DecodeBase64(b64)
	if err != nil {
		return nil, domain.Wrap(domain.KindNoResult, err, "provider returned malformed base64")
	}
	return n.FromBinary(data, declaredMIME, meta)
}

// FromParts は順序付きのパートから最初のインライン画像を取り出します。
// 画像が無い場合は finishReason をメッセージに含めて NoResult を返します。
func (n *Normalizer) FromParts(parts []*genai.Part, finishReason string, meta map[string]any) (*domain.GenerationResult, error) {
	for _, part := range parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		res, err := n.FromBinary(part.InlineData.Data, part.InlineData.MIMEType, meta)
		if err != nil {
			continue
		}
		return res, nil
	}
	if finishReason != "" {
		return nil, domain.Errorf(domain.KindNoResult, "model returned no image").WithDetail("finish reason: " + finishReason)
	}
	return nil, domain.Errorf(domain.KindNoResult, "model returned no image")
}

func build(images []string, meta map[string]any) *domain.GenerationResult {
	res := &domain.GenerationResult{Images: images}
	for k, v := range meta {
		res.WithMeta(k, v)
	}
	return res
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
