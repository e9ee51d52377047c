package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/normalize"
	"github.com/waliduser3737-spec/api-photo-project/pkg/utils"
)

const (
	DefaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"

	// VariantImageInputs は inputs に画像を置く img2img 形式です (diffusers のノイズ強度)。
	VariantImageInputs = "image-inputs"
	// VariantPromptInputs は inputs にプロンプトを置き、画像をパラメータで渡す形式です。
	VariantPromptInputs = "prompt-inputs"
)

// 変種ごとの強度の意味が逆になります。
const (
	HuggingFaceImageInputsStrength  = StrengthInverted
	HuggingFacePromptInputsStrength = StrengthDirect
)

// blobPaths は JSON で画像を返すエンドポイントの画像位置です。
var blobPaths = []string{"image", "images.0", "0.image", "generated_image", "0.generated_image"}

type hfParameters struct {
	Prompt            string  `json:"prompt,omitempty"`
	Image             string  `json:"image,omitempty"`
	Strength          float64 `json:"strength"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	Seed              *int64  `json:"seed,omitempty"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// HuggingFace は Inference API の画像生成エンドポイントを扱うアダプターです。
// モデルの読み込み中 (503) は ProviderWarming として返し、内部では待ちません。
type HuggingFace struct {
	name     string
	baseURL  string
	model    string
	variant  string
	accept   string
	guidance float64
	steps    int

	http       *httpCaller
	normalizer *normalize.Normalizer
}

func NewHuggingFace(cfg config.ProviderConfig, deps Deps) (*HuggingFace, error) {
	variant := orDefault(strings.ToLower(cfg.Variant), VariantImageInputs)
	if variant != VariantImageInputs && variant != VariantPromptInputs {
		return nil, fmt.Errorf("unknown huggingface variant %q", cfg.Variant)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("huggingface provider requires a model")
	}
	return &HuggingFace{
		name:       cfg.Name,
		baseURL:    orDefault(cfg.BaseURL, DefaultHuggingFaceBaseURL),
		model:      cfg.Model,
		variant:    variant,
		accept:     orDefault(cfg.Accept, "image/png"),
		guidance:   cfg.GuidanceScale,
		steps:      cfg.Steps,
		http:       newHTTPCaller(deps.httpClient(cfg), cfg.Name),
		normalizer: deps.normalizer(cfg),
	}, nil
}

func (h *HuggingFace) Name() string       { return h.name }
func (h *HuggingFace) Protocol() Protocol { return ProtocolSingleShot }

// Mapping はこの変種の強度変換方式を返します。
func (h *HuggingFace) Mapping() StrengthMapping {
	if h.variant == VariantPromptInputs {
		return HuggingFacePromptInputsStrength
	}
	return HuggingFaceImageInputsStrength
}

func (h *HuggingFace) Generate(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
	if err := validate(h.name, spec); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+spec.APIKey)
	header.Set("Accept", h.accept)
	endpoint := joinURL(h.baseURL, "/models/"+h.model)

	return collect(ctx, spec, func(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
		resp, err := h.http.postJSON(ctx, endpoint, header, h.payload(spec))
		if err != nil {
			return nil, err
		}
		return h.parse(resp, map[string]any{"model": h.model, "variant": h.variant})
	})
}

func (h *HuggingFace) payload(spec domain.RequestSpec) hfRequest {
	params := hfParameters{
		Strength:          h.Mapping().Apply(spec.Strength),
		GuidanceScale:     h.guidance,
		NumInferenceSteps: h.steps,
		Seed:              utils.CloneSeed(spec.Seed),
	}
	if h.variant == VariantPromptInputs {
		params.Image = spec.TemplateImage.Data
		return hfRequest{Inputs: spec.Prompt, Parameters: params}
	}
	params.Prompt = spec.Prompt
	return hfRequest{Inputs: spec.TemplateImage.Data, Parameters: params}
}

// parse はバイナリ画像または JSON に埋め込まれた base64 を結果に変換します。
func (h *HuggingFace) parse(resp *httpResponse, meta map[string]any) (*domain.GenerationResult, error) {
	if ct := resp.ContentType(); !strings.Contains(ct, "json") {
		res, err := h.normalizer.FromBinary(resp.Body, ct, meta)
		return attach(h.name, res, err)
	}

	body, err := h.http.decodeJSON(resp)
	if err != nil {
		return nil, err
	}
	if isLoading(resp.Body) {
		return nil, classifyStatus(h.name, http.StatusServiceUnavailable, resp.Header, resp.Body)
	}
	for _, path := range blobPaths {
		if b64 := body.Get(path).String(); b64 != "" {
			res, err := h.normalizer.FromBase64(b64, "", meta)
			return attach(h.name, res, err)
		}
	}
	if msg := providerMessage(resp.Body); msg != "" {
		return nil, domain.Errorf(domain.KindProviderRejected, "request rejected").WithProvider(h.name).WithDetail(msg)
	}
	return nil, domain.Errorf(domain.KindNoResult, "provider returned no image").WithProvider(h.name)
}
