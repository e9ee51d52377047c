package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/imgutil"
)

const (
	// DefaultMaxImageBytes は 1 枚あたりの参照画像サイズ上限です。
	DefaultMaxImageBytes = 10 << 20
	// DefaultCacheTTL は URL 参照画像のキャッシュ期間です。
	DefaultCacheTTL = 10 * time.Minute

	cacheKeyImageURL = "image_url:"
)

// Builder はクライアント入力から RequestSpec を組み立てます。
// 参照画像は base64 / data URL / http(s) URL / オブジェクトストレージ URI を受け付け、
// すべて data URL プレフィックスのない純粋な base64 に正規化します。
type Builder struct {
	httpClient HTTPClient
	reader     ObjectReader
	cache      ImageCacher
	cacheTTL   time.Duration
	maxBytes   int
	urlGuard   func(string) (bool, error)
}

// Option は Builder の設定関数です。
type Option func(*Builder)

// WithHTTPClient は URL 参照画像の取得に使うクライアントを設定します。
// 未設定の場合、URL 参照は受け付けません。
func WithHTTPClient(c HTTPClient) Option {
	return func(b *Builder) { b.httpClient = c }
}

// WithRemoteReader は gs:// や s3:// の参照画像を読むリーダーを設定します。
func WithRemoteReader(r remoteio.InputReader) Option {
	return func(b *Builder) {
		if r != nil {
			b.reader = r
		}
	}
}

// WithCache は URL 参照画像のキャッシュを設定します。
func WithCache(c ImageCacher, ttl time.Duration) Option {
	return func(b *Builder) {
		b.cache = c
		if ttl > 0 {
			b.cacheTTL = ttl
		}
	}
}

// WithMaxImageBytes は参照画像のサイズ上限を設定します。
func WithMaxImageBytes(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxBytes = n
		}
	}
}

// NewBuilder は Builder を生成します。
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		cacheTTL: DefaultCacheTTL,
		maxBytes: DefaultMaxImageBytes,
		urlGuard: IsSafeURL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build は入力を検証・正規化して RequestSpec を返します。
// apiKey や prompt の欠落は画像の取得より前に InvalidInput として報告されます。
func (b *Builder) Build(ctx context.Context, in domain.GenerateInput) (domain.RequestSpec, error) {
	spec := domain.RequestSpec{
		APIKey:      strings.TrimSpace(in.APIKey),
		Prompt:      strings.TrimSpace(in.Prompt),
		Strength:    domain.DefaultStrength,
		OutputCount: domain.DefaultOutputCount,
		Seed:        in.Seed,
	}
	if in.Strength != nil {
		spec.Strength = *in.Strength
	}
	if in.Outputs != nil {
		spec.OutputCount = *in.Outputs
	}
	if err := spec.ValidateFields(); err != nil {
		return spec, err
	}

	if strings.TrimSpace(in.Template) != "" {
		img, err := b.ResolveImage(ctx, in.Template)
		if err != nil {
			return spec, domain.Wrap(domain.KindInvalidInput, err, "invalid template image")
		}
		spec.TemplateImage = img
	}
	if strings.TrimSpace(in.Product) != "" {
		img, err := b.ResolveImage(ctx, in.Product)
		if err != nil {
			return spec, domain.Wrap(domain.KindInvalidInput, err, "invalid product image")
		}
		spec.ProductImage = &img
	}

	return spec, spec.Validate()
}

// ResolveImage は 1 つの画像参照を正規化済みの domain.Image に変換します。
func (b *Builder) ResolveImage(ctx context.Context, raw string) (domain.Image, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return domain.Image{}, fmt.Errorf("empty image reference")
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		data, err := b.fetchURL(ctx, raw)
		if err != nil {
			return domain.Image{}, err
		}
		return b.toImage(data, "")
	case strings.HasPrefix(raw, "gs://"), strings.HasPrefix(raw, "s3://"):
		data, err := b.readObject(ctx, raw)
		if err != nil {
			return domain.Image{}, err
		}
		return b.toImage(data, "")
	default:
		declared, payload, err := imgutil.SplitDataURI(raw)
		if err != nil {
			return domain.Image{}, err
		}
		data, err := imgutil.DecodeBase64(payload)
		if err != nil {
			return domain.Image{}, fmt.Errorf("image is neither a URL nor valid base64: %w", err)
		}
		return b.toImage(data, declared)
	}
}

func (b *Builder) toImage(data []byte, declared string) (domain.Image, error) {
	if len(data) == 0 {
		return domain.Image{}, fmt.Errorf("image payload is empty")
	}
	if len(data) > b.maxBytes {
		return domain.Image{}, fmt.Errorf("image is %d bytes, limit is %d", len(data), b.maxBytes)
	}
	mimeType := declared
	if !strings.HasPrefix(mimeType, "image/") {
		detected, err := imgutil.DetectMIME(data)
		if err != nil {
			return domain.Image{}, err
		}
		mimeType = detected
	}
	return domain.Image{
		Data:     base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
	}, nil
}

func (b *Builder) fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	if b.httpClient == nil {
		return nil, fmt.Errorf("image URLs are not accepted by this deployment")
	}

	if b.cache != nil {
		if cached, found := b.cache.Get(cacheKeyImageURL + rawURL); found {
			if data, ok := cached.([]byte); ok {
				return data, nil
			}
			slog.WarnContext(ctx, "キャッシュデータが不正な型です", "url", rawURL, "type", fmt.Sprintf("%T", cached))
		}
	}

	if safe, err := b.urlGuard(rawURL); err != nil || !safe {
		slog.WarnContext(ctx, "SSRFの可能性がある、または不正なURLをブロックしました", "url", rawURL, "error", err)
		return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
	}

	data, err := b.httpClient.FetchBytes(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("参照画像のダウンロードに失敗しました: %w", err)
	}

	if b.cache != nil {
		b.cache.Set(cacheKeyImageURL+rawURL, data, b.cacheTTL)
	}
	return data, nil
}

func (b *Builder) readObject(ctx context.Context, uri string) ([]byte, error) {
	if b.reader == nil {
		return nil, fmt.Errorf("object storage references are not enabled: %s", uri)
	}
	rc, err := b.reader.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", uri, err)
	}
	defer rc.Close()
	// 上限 +1 バイトまで読み、超過を検出できるようにする
	return io.ReadAll(io.LimitReader(rc, int64(b.maxBytes)+1))
}
