// Package generator はプロバイダーの選択、リクエストの正規化、アダプター呼び出しをまとめます。
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

// Service は ImageGenerator の実装です。
type Service struct {
	adapters        AdapterLookup
	builder         SpecBuilder
	recorder        Recorder
	defaultProvider string
}

// Option は Service の任意設定です。
type Option func(*Service)

// WithRecorder はメトリクスの記録先を設定します。
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService は依存関係を注入して Service を初期化します。
func NewService(lookup AdapterLookup, builder SpecBuilder, defaultProvider string, opts ...Option) (*Service, error) {
	if lookup == nil {
		return nil, fmt.Errorf("adapter lookup is required")
	}
	if builder == nil {
		return nil, fmt.Errorf("spec builder is required")
	}
	if _, ok := lookup.Get(defaultProvider); !ok {
		return nil, fmt.Errorf("default provider %q is not registered", defaultProvider)
	}

	s := &Service{
		adapters:        lookup,
		builder:         builder,
		defaultProvider: defaultProvider,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate は 1 件の生成リクエストを処理します。
// 返すエラーは常に *domain.GenerationError です。
func (s *Service) Generate(ctx context.Context, in domain.GenerateInput) (*domain.GenerationResult, error) {
	start := time.Now()
	requestID := uuid.NewString()

	name := strings.TrimSpace(in.Provider)
	if name == "" {
		name = s.defaultProvider
	}
	logger := slog.With("request_id", requestID, "provider", name)

	res, err := s.generate(ctx, name, in, logger)
	elapsed := time.Since(start)

	if err != nil {
		ge := domain.AsGenerationError(err)
		if ge.Provider == "" {
			ge.Provider = name
		}
		label := name
		if _, ok := s.adapters.Get(name); !ok {
			// 任意の文字列をラベルにしない
			label = "unknown"
		}
		s.observe(label, ge.Kind, elapsed)
		logger.WarnContext(ctx, "画像生成に失敗しました",
			"kind", ge.Kind,
			"error", ge,
			"elapsed", elapsed,
		)
		return nil, ge
	}

	s.observe(name, "", elapsed)
	logger.InfoContext(ctx, "画像生成が完了しました", "images", len(res.Images), "elapsed", elapsed)
	return res.WithMeta("requestId", requestID).WithMeta("provider", name), nil
}

func (s *Service) generate(ctx context.Context, name string, in domain.GenerateInput, logger *slog.Logger) (*domain.GenerationResult, error) {
	adapter, ok := s.adapters.Get(name)
	if !ok {
		return nil, domain.Errorf(domain.KindInvalidInput, "unknown provider %q", name)
	}

	spec, err := s.builder.Build(ctx, in)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "画像生成を開始します", "protocol", adapter.Protocol(), "spec", spec)
	return adapter.Generate(ctx, spec)
}

func (s *Service) observe(provider string, kind domain.ErrorKind, elapsed time.Duration) {
	if s.recorder != nil {
		s.recorder.ObserveGeneration(provider, kind, elapsed)
	}
}
