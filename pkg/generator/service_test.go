package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waliduser3737-spec/api-photo-project/pkg/adapters"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

func newTestService(t *testing.T, builder *mockBuilder, rec *mockRecorder, list ...*mockAdapter) *Service {
	t.Helper()
	lookup := mockLookup{}
	for _, a := range list {
		lookup[a.name] = a
	}
	svc, err := NewService(lookup, builder, list[0].name, WithRecorder(rec))
	require.NoError(t, err)
	return svc
}

func TestService_Generate(t *testing.T) {
	t.Run("既定のプロバイダーを使う", func(t *testing.T) {
		replicate := &mockAdapter{name: "replicate", res: &domain.GenerationResult{Images: []string{"https://x/1.png"}}}
		flux := &mockAdapter{name: "flux"}
		builder := &mockBuilder{spec: domain.RequestSpec{Prompt: "p"}}
		rec := &mockRecorder{}
		svc := newTestService(t, builder, rec, replicate, flux)

		res, err := svc.Generate(context.Background(), domain.GenerateInput{Prompt: "p"})

		require.NoError(t, err)
		assert.Equal(t, []string{"https://x/1.png"}, res.Images)
		assert.Equal(t, "replicate", res.ProviderMeta["provider"])
		assert.NotEmpty(t, res.ProviderMeta["requestId"])
		assert.Equal(t, 1, replicate.calls)
		assert.Zero(t, flux.calls)
		assert.Equal(t, "p", replicate.spec.Prompt)
		assert.Equal(t, []observation{{provider: "replicate"}}, rec.observed)
	})

	t.Run("リクエストでプロバイダーを選べる", func(t *testing.T) {
		replicate := &mockAdapter{name: "replicate"}
		flux := &mockAdapter{name: "flux", res: &domain.GenerationResult{Images: []string{"u"}}}
		svc := newTestService(t, &mockBuilder{}, &mockRecorder{}, replicate, flux)

		_, err := svc.Generate(context.Background(), domain.GenerateInput{Provider: " flux "})

		require.NoError(t, err)
		assert.Equal(t, 1, flux.calls)
		assert.Zero(t, replicate.calls)
	})

	t.Run("未知のプロバイダーは InvalidInput", func(t *testing.T) {
		builder := &mockBuilder{}
		rec := &mockRecorder{}
		svc := newTestService(t, builder, rec, &mockAdapter{name: "replicate"})

		_, err := svc.Generate(context.Background(), domain.GenerateInput{Provider: "dalle"})

		assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
		assert.Zero(t, builder.calls, "プロバイダーが無ければ画像の取得もしないのだ")
		assert.Equal(t, []observation{{provider: "unknown", kind: domain.KindInvalidInput}}, rec.observed)
	})

	t.Run("構築エラーはアダプターを呼ばない", func(t *testing.T) {
		a := &mockAdapter{name: "replicate"}
		builder := &mockBuilder{err: domain.Errorf(domain.KindInvalidInput, "prompt is required")}
		svc := newTestService(t, builder, &mockRecorder{}, a)

		_, err := svc.Generate(context.Background(), domain.GenerateInput{})

		ge := domain.AsGenerationError(err)
		assert.Equal(t, domain.KindInvalidInput, ge.Kind)
		assert.Equal(t, "replicate", ge.Provider)
		assert.Zero(t, a.calls)
	})

	t.Run("想定外のエラーは Unexpected に包む", func(t *testing.T) {
		a := &mockAdapter{name: "replicate", err: errors.New("boom")}
		rec := &mockRecorder{}
		svc := newTestService(t, &mockBuilder{}, rec, a)

		_, err := svc.Generate(context.Background(), domain.GenerateInput{})

		var ge *domain.GenerationError
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, domain.KindUnexpected, ge.Kind)
		assert.Equal(t, []observation{{provider: "replicate", kind: domain.KindUnexpected}}, rec.observed)
	})

	t.Run("アダプターのエラー種別はそのまま返す", func(t *testing.T) {
		a := &mockAdapter{name: "replicate", err: domain.Errorf(domain.KindProviderWarming, "loading").WithProvider("replicate")}
		svc := newTestService(t, &mockBuilder{}, &mockRecorder{}, a)

		_, err := svc.Generate(context.Background(), domain.GenerateInput{})

		assert.Equal(t, domain.KindProviderWarming, domain.KindOf(err))
	})
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, &mockBuilder{}, "x")
	assert.Error(t, err)

	_, err = NewService(mockLookup{}, nil, "x")
	assert.Error(t, err)

	_, err = NewService(mockLookup{"a": &mockAdapter{name: "a"}}, &mockBuilder{}, "b")
	assert.Error(t, err, "既定のプロバイダーが未登録ならエラー")
}

var _ adapters.Adapter = (*mockAdapter)(nil)
