package adapters

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/imgutil"
	"github.com/waliduser3737-spec/api-photo-project/pkg/normalize"
	"github.com/waliduser3737-spec/api-photo-project/pkg/poller"
	"github.com/waliduser3737-spec/api-photo-project/pkg/utils"
)

const (
	DefaultReplicateBaseURL = "https://api.replicate.com"
	DefaultReplicateModel   = "lucataco/sdxl-ip-adapter"

	// ReplicateStrength: ip_adapter_scale は参照画像の影響度なので、そのまま渡します。
	ReplicateStrength = StrengthDirect

	defaultGuidanceScale = 7.5
	defaultSteps         = 30
)

type replicateInput struct {
	Prompt            string  `json:"prompt"`
	ReferenceImage    string  `json:"reference_image"`
	Image             string  `json:"image,omitempty"`
	IPAdapterScale    float64 `json:"ip_adapter_scale"`
	NumOutputs        int     `json:"num_outputs"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Seed              *int64  `json:"seed,omitempty"`
}

type replicateRequest struct {
	Version string         `json:"version,omitempty"`
	Input   replicateInput `json:"input"`
}

// Replicate は Replicate の predictions API を扱うアダプターです。
// Wait が有効な場合は Prefer: wait で同期的に待ち、未完了ならポーリングに切り替えます。
type Replicate struct {
	name     string
	baseURL  string
	model    string
	version  string
	wait     bool
	guidance float64
	steps    int

	http       *httpCaller
	poller     *poller.Poller
	normalizer *normalize.Normalizer
}

// NewReplicate は Replicate アダプターを生成します。
func NewReplicate(cfg config.ProviderConfig, deps Deps) *Replicate {
	r := &Replicate{
		name:       cfg.Name,
		baseURL:    orDefault(cfg.BaseURL, DefaultReplicateBaseURL),
		model:      orDefault(cfg.Model, DefaultReplicateModel),
		version:    cfg.Version,
		wait:       cfg.Wait,
		guidance:   cfg.GuidanceScale,
		steps:      cfg.Steps,
		http:       newHTTPCaller(deps.httpClient(cfg), cfg.Name),
		poller:     deps.poller(),
		normalizer: deps.normalizer(cfg),
	}
	if r.guidance <= 0 {
		r.guidance = defaultGuidanceScale
	}
	if r.steps <= 0 {
		r.steps = defaultSteps
	}
	return r
}

func (r *Replicate) Name() string { return r.name }

func (r *Replicate) Protocol() Protocol {
	if r.wait {
		return ProtocolSyncWait
	}
	return ProtocolSubmitPoll
}

func (r *Replicate) Generate(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
	if err := validate(r.name, spec); err != nil {
		return nil, err
	}

	header := r.header(spec.APIKey)
	if r.wait {
		header.Set("Prefer", "wait")
	}

	resp, err := r.http.postJSON(ctx, r.endpoint(), header, r.payload(spec))
	if err != nil {
		return nil, err
	}
	body, err := r.http.decodeJSON(resp)
	if err != nil {
		return nil, err
	}

	id, statusURL, snap := replicateSnapshot(body)
	job := domain.NewJob(id, statusURL, snap)
	if !job.Status.IsTerminal() && job.StatusURL == "" {
		return nil, domain.Errorf(domain.KindUnexpected, "prediction %s has no status URL", id).WithProvider(r.name)
	}

	pollHeader := r.header(spec.APIKey)
	fetch := func(ctx context.Context, job *domain.GenerationJob) (domain.Snapshot, error) {
		resp, err := r.http.get(ctx, job.StatusURL, pollHeader)
		if err != nil {
			return domain.Snapshot{}, err
		}
		body, err := r.http.decodeJSON(resp)
		if err != nil {
			return domain.Snapshot{}, err
		}
		_, _, snap := replicateSnapshot(body)
		return snap, nil
	}

	if err := r.poller.Poll(ctx, r.name, job, fetch); err != nil {
		return nil, err
	}

	meta := map[string]any{"predictionId": job.ID, "model": r.modelRef()}
	res, err := r.normalizer.FromURLs(ctx, job.Result, meta)
	return attach(r.name, res, err)
}

func (r *Replicate) header(apiKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Token "+apiKey)
	h.Set("Accept", "application/json")
	return h
}

func (r *Replicate) endpoint() string {
	if r.version != "" {
		return joinURL(r.baseURL, "/v1/predictions")
	}
	return joinURL(r.baseURL, "/v1/models/"+r.model+"/predictions")
}

func (r *Replicate) modelRef() string {
	if r.version != "" {
		return r.version
	}
	return r.model
}

func (r *Replicate) payload(spec domain.RequestSpec) replicateRequest {
	in := replicateInput{
		Prompt:            spec.Prompt,
		ReferenceImage:    imgutil.DataURIFromBase64(spec.TemplateImage.MIMEType, spec.TemplateImage.Data),
		IPAdapterScale:    ReplicateStrength.Apply(spec.Strength),
		NumOutputs:        spec.OutputCount,
		GuidanceScale:     r.guidance,
		NumInferenceSteps: r.steps,
		Seed:              utils.CloneSeed(spec.Seed),
	}
	if spec.ProductImage != nil && !spec.ProductImage.IsZero() {
		in.Image = imgutil.DataURIFromBase64(spec.ProductImage.MIMEType, spec.ProductImage.Data)
	}
	return replicateRequest{Version: r.version, Input: in}
}

// replicateSnapshot は prediction オブジェクトを Snapshot に変換します。
func replicateSnapshot(body gjson.Result) (id, statusURL string, snap domain.Snapshot) {
	id = body.Get("id").String()
	statusURL = body.Get("urls.get").String()

	switch strings.ToLower(body.Get("status").String()) {
	case "starting":
		snap.Status = domain.JobPending
	case "processing":
		snap.Status = domain.JobRunning
	case "succeeded":
		snap.Status = domain.JobSucceeded
		snap.Result = outputURLs(body.Get("output"))
	case "failed":
		snap.Status = domain.JobFailed
		snap.ErrorDetail = body.Get("error").String()
	case "canceled", "aborted":
		snap.Status = domain.JobCanceled
		snap.ErrorDetail = body.Get("error").String()
	}
	return id, statusURL, snap
}

// outputURLs は文字列または文字列配列の output を展開します。
func outputURLs(out gjson.Result) []string {
	if out.IsArray() {
		var urls []string
		for _, v := range out.Array() {
			if s := v.String(); s != "" {
				urls = append(urls, s)
			}
		}
		return urls
	}
	if s := out.String(); s != "" {
		return []string{s}
	}
	return nil
}
