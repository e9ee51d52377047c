package adapters

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
	"github.com/waliduser3737-spec/api-photo-project/pkg/normalize"
	"github.com/waliduser3737-spec/api-photo-project/pkg/poller"
)

// Deps はアダプター間で共有する依存関係です。nil のフィールドには既定値を使います。
type Deps struct {
	HTTPClient *http.Client
	Poller     *poller.Poller
	// Fetcher は URL 出力を data URI に変換する際の取得に使います。
	Fetcher normalize.Fetcher
	// GeminiFactory は Gemini クライアントの生成関数です。nil の場合は genai を直接使います。
	GeminiFactory GeneratorFactory
}

func (d Deps) httpClient(cfg config.ProviderConfig) *http.Client {
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout > 0 {
		c := *client
		c.Timeout = cfg.Timeout
		return &c
	}
	return client
}

func (d Deps) poller() *poller.Poller {
	if d.Poller != nil {
		return d.Poller
	}
	return poller.New()
}

func (d Deps) normalizer(cfg config.ProviderConfig) *normalize.Normalizer {
	return normalize.New(d.Fetcher, cfg.InlineResults)
}

// New は設定の種別に応じたアダプターを生成します。
func New(cfg config.ProviderConfig, deps Deps) (Adapter, error) {
	switch cfg.Kind {
	case config.KindReplicate:
		return NewReplicate(cfg, deps), nil
	case config.KindFlux:
		return NewFlux(cfg, deps), nil
	case config.KindHuggingFace:
		return NewHuggingFace(cfg, deps)
	case config.KindStability:
		return NewStability(cfg, deps), nil
	case config.KindGemini:
		return NewGemini(cfg, deps), nil
	}
	return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
}

// Registry は設定名をキーにアダプターを保持します。登録後は読み取り専用です。
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry は設定からすべてのアダプターを生成して登録します。
func NewRegistry(cfgs []config.ProviderConfig, deps Deps) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(cfgs))}
	for _, cfg := range cfgs {
		a, err := New(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", cfg.Name, err)
		}
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register はアダプターを追加します。同名の登録はエラーです。
func (r *Registry) Register(a Adapter) error {
	if r.adapters == nil {
		r.adapters = make(map[string]Adapter)
	}
	if _, dup := r.adapters[a.Name()]; dup {
		return fmt.Errorf("provider %q is already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get は名前に対応するアダプターを返します。
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names は登録済みのプロバイダー名をソートして返します。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
