package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/imgutil"
	"github.com/waliduser3737-spec/api-photo-project/pkg/normalize"
	"github.com/waliduser3737-spec/api-photo-project/pkg/utils"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash-image"

	// GeminiStrength: Gemini には強度パラメータが無く、参照画像はプロンプトと同列に渡します。
	GeminiStrength = StrengthNone

	// inlineImageLimit を超える参照画像は JPEG に再圧縮してから送ります。
	inlineImageLimit = 4 << 20
)

// ContentGenerator はパートの列からコンテンツを生成するクライアントです。
// シグネチャは gemini.GenerativeModel の GenerateWithParts と同じです。
type ContentGenerator interface {
	GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
}

// GeneratorFactory はリクエストごとの API キーで ContentGenerator を生成します。
type GeneratorFactory func(ctx context.Context, apiKey, baseURL string) (ContentGenerator, error)

// Gemini はマルチモーダルモデルで画像を生成するアダプターです。
// 応答パートのうち最初のインライン画像を結果にします。
type Gemini struct {
	name    string
	model   string
	baseURL string

	factory    GeneratorFactory
	normalizer *normalize.Normalizer
}

func NewGemini(cfg config.ProviderConfig, deps Deps) *Gemini {
	factory := deps.GeminiFactory
	if factory == nil {
		factory = NewGenAIGenerator
	}
	return &Gemini{
		name:       cfg.Name,
		model:      orDefault(cfg.Model, DefaultGeminiModel),
		baseURL:    cfg.BaseURL,
		factory:    factory,
		normalizer: deps.normalizer(cfg),
	}
}

func (g *Gemini) Name() string       { return g.name }
func (g *Gemini) Protocol() Protocol { return ProtocolMultiModal }

func (g *Gemini) Generate(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
	if err := validate(g.name, spec); err != nil {
		return nil, err
	}
	if err := validateInt32Seeds(spec); err != nil {
		return nil, err.WithProvider(g.name)
	}

	parts := []*genai.Part{{Text: spec.Prompt}}
	template, err := g.imagePart(spec.TemplateImage)
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidInput, err, "invalid template image").WithProvider(g.name)
	}
	parts = append(parts, template)
	if spec.ProductImage != nil && !spec.ProductImage.IsZero() {
		product, err := g.imagePart(*spec.ProductImage)
		if err != nil {
			return nil, domain.Wrap(domain.KindInvalidInput, err, "invalid product image").WithProvider(g.name)
		}
		parts = append(parts, product)
	}

	client, err := g.factory(ctx, spec.APIKey, g.baseURL)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnexpected, err, "failed to create client").WithProvider(g.name)
	}

	return collect(ctx, spec, func(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
		resp, err := client.GenerateWithParts(ctx, g.model, parts, gemini.GenerateOptions{Seed: spec.Seed})
		if err != nil {
			return nil, classifyGenAI(g.name, err)
		}
		return g.parse(resp)
	})
}

// validateInt32Seeds は呼び出しごとのシード (seed 〜 seed+outputs-1) が
// すべて int32 に収まることを確認します。
func validateInt32Seeds(spec domain.RequestSpec) *domain.GenerationError {
	if spec.Seed == nil {
		return nil
	}
	first := *spec.Seed
	last := first + int64(max(spec.OutputCount, 1)-1)
	if !utils.FitsInt32(first) || !utils.FitsInt32(last) {
		return domain.Errorf(domain.KindInvalidInput, "seed must fit in a 32-bit integer for this provider, got %d", first)
	}
	return nil
}

func (g *Gemini) imagePart(img domain.Image) (*genai.Part, error) {
	data, err := imgutil.DecodeBase64(img.Data)
	if err != nil {
		return nil, err
	}
	mimeType := img.MIMEType
	if mimeType == "" {
		if mimeType, err = imgutil.DetectMIME(data); err != nil {
			return nil, err
		}
	}
	data, mimeType = imgutil.Shrink(data, mimeType, inlineImageLimit, imgutil.DefaultJPEGQuality)
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}, nil
}

// parse は最初の候補からインライン画像を取り出します。
func (g *Gemini) parse(resp *gemini.Response) (*domain.GenerationResult, error) {
	if resp == nil || resp.RawResponse == nil {
		return nil, domain.Errorf(domain.KindUnexpected, "empty response from model").WithProvider(g.name)
	}
	raw := resp.RawResponse
	if len(raw.Candidates) == 0 {
		ge := domain.Errorf(domain.KindNoResult, "model returned no candidates").WithProvider(g.name)
		if raw.PromptFeedback != nil && raw.PromptFeedback.BlockReason != "" {
			ge = ge.WithDetail(fmt.Sprintf("blocked: %s", raw.PromptFeedback.BlockReason))
		}
		return nil, ge
	}

	// 最初の候補のみを利用する
	candidate := raw.Candidates[0]
	var parts []*genai.Part
	if candidate.Content != nil {
		parts = candidate.Content.Parts
	}
	reason := ""
	if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		reason = string(candidate.FinishReason)
	}
	res, err := g.normalizer.FromParts(parts, reason, map[string]any{"model": g.model})
	return attach(g.name, res, err)
}

// classifyGenAI は SDK のエラーを ErrorKind に分類します。
func classifyGenAI(provider string, err error) *domain.GenerationError {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Wrap(domain.KindPollTimedOut, err, "request deadline exceeded").WithProvider(provider)
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return domain.Wrap(domain.KindUnexpected, err, "request to model failed").WithProvider(provider)
	}
	ge := classifyStatus(provider, apiErr.Code, nil, nil)
	ge.Cause = err
	if apiErr.Message != "" {
		ge = ge.WithDetail(apiErr.Message)
	}
	return ge
}

// genaiGenerator は genai SDK を ContentGenerator として使うための実装です。
// gemini.Client は 429 (ResourceExhausted) を内部でリトライするため使わず、
// SDK を 1 回だけ呼び出して結果を gemini.Response に包みます。
type genaiGenerator struct {
	client *genai.Client
}

// NewGenAIGenerator は Gemini API バックエンドのクライアントを生成します。
func NewGenAIGenerator(ctx context.Context, apiKey, baseURL string) (ContentGenerator, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai クライアントの初期化に失敗しました: %w", err)
	}
	return &genaiGenerator{client: client}, nil
}

func (g *genaiGenerator) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	cfg := &genai.GenerateContentConfig{Seed: utils.SeedToPtrInt32(opts.Seed)}
	cfg.ResponseModalities = append(cfg.ResponseModalities, "TEXT", "IMAGE")

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Gemini 応答を受信しました", "model", model, "candidates", len(resp.Candidates))
	return &gemini.Response{RawResponse: resp}, nil
}
