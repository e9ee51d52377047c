package adapters

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/imgutil"
	"github.com/waliduser3737-spec/api-photo-project/pkg/normalize"
)

const (
	DefaultStabilityBaseURL = "https://api.stability.ai"
	DefaultStabilityModel   = "sd3.5-large"

	// StabilityStrength: strength は img2img のノイズ量なので反転して渡します。
	StabilityStrength = StrengthInverted

	stabilityPath          = "/v2beta/stable-image/generate/sd3"
	stabilityContentFilter = "CONTENT_FILTERED"
)

// Stability は Stability AI の Stable Image API (multipart) を扱うアダプターです。
type Stability struct {
	name    string
	baseURL string
	model   string
	accept  string

	http       *httpCaller
	normalizer *normalize.Normalizer
}

func NewStability(cfg config.ProviderConfig, deps Deps) *Stability {
	return &Stability{
		name:       cfg.Name,
		baseURL:    orDefault(cfg.BaseURL, DefaultStabilityBaseURL),
		model:      orDefault(cfg.Model, DefaultStabilityModel),
		accept:     orDefault(cfg.Accept, "application/json"),
		http:       newHTTPCaller(deps.httpClient(cfg), cfg.Name),
		normalizer: deps.normalizer(cfg),
	}
}

func (s *Stability) Name() string       { return s.name }
func (s *Stability) Protocol() Protocol { return ProtocolSingleShot }

func (s *Stability) Generate(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
	if err := validate(s.name, spec); err != nil {
		return nil, err
	}
	template, err := imgutil.DecodeBase64(spec.TemplateImage.Data)
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidInput, err, "template image is not valid base64").WithProvider(s.name)
	}

	return collect(ctx, spec, func(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
		body, contentType, err := s.form(spec, template)
		if err != nil {
			return nil, domain.Wrap(domain.KindUnexpected, err, "failed to build form").WithProvider(s.name)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(s.baseURL, stabilityPath), body)
		if err != nil {
			return nil, domain.Wrap(domain.KindUnexpected, err, "failed to build request").WithProvider(s.name)
		}
		req.Header.Set("Authorization", "Bearer "+spec.APIKey)
		req.Header.Set("Accept", s.accept)
		req.Header.Set("Content-Type", contentType)

		resp, err := s.http.do(req)
		if err != nil {
			return nil, err
		}
		return s.parse(resp)
	})
}

// form は multipart のフォームを組み立てます。シードが無い場合は seed フィールドを送りません。
func (s *Stability) form(spec domain.RequestSpec, template []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := [][2]string{
		{"prompt", spec.Prompt},
		{"mode", "image-to-image"},
		{"model", s.model},
		{"strength", strconv.FormatFloat(StabilityStrength.Apply(spec.Strength), 'f', -1, 64)},
		{"output_format", "png"},
	}
	if spec.Seed != nil {
		fields = append(fields, [2]string{"seed", strconv.FormatInt(*spec.Seed, 10)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="template"`)
	h.Set("Content-Type", orDefault(spec.TemplateImage.MIMEType, "application/octet-stream"))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(template); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func (s *Stability) parse(resp *httpResponse) (*domain.GenerationResult, error) {
	meta := map[string]any{"model": s.model}

	if ct := resp.ContentType(); strings.HasPrefix(ct, "image/") {
		if reason := resp.Header.Get("Finish-Reason"); reason == stabilityContentFilter {
			return nil, domain.Errorf(domain.KindNoResult, "output was filtered").WithProvider(s.name).WithDetail(reason)
		}
		if seed := resp.Header.Get("Seed"); seed != "" {
			meta["seed"] = seed
		}
		res, err := s.normalizer.FromBinary(resp.Body, ct, meta)
		return attach(s.name, res, err)
	}

	body, err := s.http.decodeJSON(resp)
	if err != nil {
		return nil, err
	}
	if reason := body.Get("finish_reason").String(); reason == stabilityContentFilter {
		return nil, domain.Errorf(domain.KindNoResult, "output was filtered").WithProvider(s.name).WithDetail(reason)
	}
	if seed := body.Get("seed"); seed.Exists() {
		meta["seed"] = seed.Int()
	}
	res, err := s.normalizer.FromBase64(body.Get("image").String(), "image/png", meta)
	return attach(s.name, res, err)
}
