package server

import (
	"context"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

type mockGenerator struct {
	res   *domain.GenerationResult
	err   error
	calls int
	input domain.GenerateInput
}

func (m *mockGenerator) Generate(ctx context.Context, in domain.GenerateInput) (*domain.GenerationResult, error) {
	m.calls++
	m.input = in
	return m.res, m.err
}

type mockVerifier struct {
	users map[string]string
}

func (m *mockVerifier) Verify(ctx context.Context, username, password string) bool {
	p, ok := m.users[username]
	return ok && p == password
}

type mockLoginRecorder struct {
	results []bool
}

func (m *mockLoginRecorder) ObserveLogin(success bool) {
	m.results = append(m.results, success)
}
