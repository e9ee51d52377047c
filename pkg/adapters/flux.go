package adapters

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/normalize"
	"github.com/waliduser3737-spec/api-photo-project/pkg/poller"
	"github.com/waliduser3737-spec/api-photo-project/pkg/utils"
)

const (
	DefaultFluxBaseURL = "https://api.bfl.ai"
	DefaultFluxModel   = "flux-pro-1.1-ultra"

	// FluxStrength: image_prompt_strength は参照画像の影響度なので、そのまま渡します。
	FluxStrength = StrengthDirect
)

type fluxRequest struct {
	Prompt              string  `json:"prompt"`
	ImagePrompt         string  `json:"image_prompt"`
	ImagePromptStrength float64 `json:"image_prompt_strength"`
	OutputFormat        string  `json:"output_format"`
	Seed                *int64  `json:"seed,omitempty"`
}

// Flux は Black Forest Labs の API を扱うアダプターです。
// 1 回の投入で 1 枚を生成するため、複数枚の要求は順番に投入します。
type Flux struct {
	name    string
	baseURL string
	model   string

	http       *httpCaller
	poller     *poller.Poller
	normalizer *normalize.Normalizer
}

func NewFlux(cfg config.ProviderConfig, deps Deps) *Flux {
	return &Flux{
		name:       cfg.Name,
		baseURL:    orDefault(cfg.BaseURL, DefaultFluxBaseURL),
		model:      orDefault(cfg.Model, DefaultFluxModel),
		http:       newHTTPCaller(deps.httpClient(cfg), cfg.Name),
		poller:     deps.poller(),
		normalizer: deps.normalizer(cfg),
	}
}

func (f *Flux) Name() string       { return f.name }
func (f *Flux) Protocol() Protocol { return ProtocolSubmitPoll }

func (f *Flux) Generate(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
	if err := validate(f.name, spec); err != nil {
		return nil, err
	}
	return collect(ctx, spec, f.generateOne)
}

func (f *Flux) generateOne(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
	header := f.header(spec.APIKey)
	payload := fluxRequest{
		Prompt:              spec.Prompt,
		ImagePrompt:         spec.TemplateImage.Data,
		ImagePromptStrength: FluxStrength.Apply(spec.Strength),
		OutputFormat:        "png",
		Seed:                utils.CloneSeed(spec.Seed),
	}

	resp, err := f.http.postJSON(ctx, joinURL(f.baseURL, "/v1/"+f.model), header, payload)
	if err != nil {
		return nil, err
	}
	body, err := f.http.decodeJSON(resp)
	if err != nil {
		return nil, err
	}

	id := body.Get("id").String()
	if id == "" {
		return nil, domain.Errorf(domain.KindUnexpected, "submission returned no task id").WithProvider(f.name)
	}
	statusURL := body.Get("polling_url").String()
	if statusURL == "" {
		statusURL = joinURL(f.baseURL, "/v1/get_result") + "?id=" + url.QueryEscape(id)
	}

	job := domain.NewJob(id, statusURL, domain.Snapshot{Status: domain.JobPending})
	fetch := func(ctx context.Context, job *domain.GenerationJob) (domain.Snapshot, error) {
		resp, err := f.http.get(ctx, job.StatusURL, header)
		if err != nil {
			return domain.Snapshot{}, err
		}
		body, err := f.http.decodeJSON(resp)
		if err != nil {
			return domain.Snapshot{}, err
		}
		return fluxSnapshot(body), nil
	}
	if err := f.poller.Poll(ctx, f.name, job, fetch); err != nil {
		return nil, err
	}

	res, err := f.normalizer.FromURLs(ctx, job.Result, map[string]any{"taskId": job.ID, "model": f.model})
	return attach(f.name, res, err)
}

func (f *Flux) header(apiKey string) http.Header {
	h := http.Header{}
	h.Set("x-key", apiKey)
	h.Set("Accept", "application/json")
	return h
}

// fluxSnapshot は get_result の応答を Snapshot に変換します。
func fluxSnapshot(body gjson.Result) domain.Snapshot {
	status := body.Get("status").String()
	switch status {
	case "Ready":
		return domain.Snapshot{Status: domain.JobSucceeded, Result: outputURLs(body.Get("result.sample"))}
	case "Pending":
		return domain.Snapshot{Status: domain.JobRunning}
	case "Error", "Failed", "Content Moderated", "Request Moderated", "Task not found":
		detail := status
		if d := body.Get("details").String(); d != "" && !body.Get("details").IsObject() {
			detail += ": " + d
		}
		return domain.Snapshot{Status: domain.JobFailed, ErrorDetail: detail}
	}
	return domain.Snapshot{Status: domain.JobRunning}
}
