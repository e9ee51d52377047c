package generator

import (
	"context"
	"time"

	"github.com/waliduser3737-spec/api-photo-project/pkg/adapters"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

// ImageGenerator はサーバー層が利用する統合窓口です。
type ImageGenerator interface {
	Generate(ctx context.Context, in domain.GenerateInput) (*domain.GenerationResult, error)
}

// SpecBuilder は生のリクエストを正規化済みの RequestSpec に変換します。
type SpecBuilder interface {
	Build(ctx context.Context, in domain.GenerateInput) (domain.RequestSpec, error)
}

// AdapterLookup は名前からアダプターを引きます。
type AdapterLookup interface {
	Get(name string) (adapters.Adapter, bool)
}

// Recorder は生成結果のメトリクスを記録します。
type Recorder interface {
	ObserveGeneration(provider string, kind domain.ErrorKind, elapsed time.Duration)
}
