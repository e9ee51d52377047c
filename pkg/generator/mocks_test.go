package generator

import (
	"context"
	"time"

	"github.com/waliduser3737-spec/api-photo-project/pkg/adapters"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

type mockAdapter struct {
	name  string
	res   *domain.GenerationResult
	err   error
	calls int
	spec  domain.RequestSpec
}

func (m *mockAdapter) Name() string                { return m.name }
func (m *mockAdapter) Protocol() adapters.Protocol { return adapters.ProtocolSingleShot }

func (m *mockAdapter) Generate(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error) {
	m.calls++
	m.spec = spec
	return m.res, m.err
}

type mockLookup map[string]adapters.Adapter

func (m mockLookup) Get(name string) (adapters.Adapter, bool) {
	a, ok := m[name]
	return a, ok
}

type mockBuilder struct {
	spec  domain.RequestSpec
	err   error
	calls int
}

func (m *mockBuilder) Build(ctx context.Context, in domain.GenerateInput) (domain.RequestSpec, error) {
	m.calls++
	return m.spec, m.err
}

type observation struct {
	provider string
	kind     domain.ErrorKind
}

type mockRecorder struct {
	observed []observation
}

func (m *mockRecorder) ObserveGeneration(provider string, kind domain.ErrorKind, elapsed time.Duration) {
	m.observed = append(m.observed, observation{provider: provider, kind: kind})
}
