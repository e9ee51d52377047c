// Package adapters は各画像生成プロバイダーのプロトコルを共通の Adapter に揃えます。
package adapters

import (
	"context"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
	"github.com/waliduser3737-spec/api-photo-project/pkg/utils"
)

// Protocol はプロバイダーとのやり取りの形です。
type Protocol string

const (
	// ProtocolSyncWait は投入時にサーバー側で完了を待ち、未完了ならポーリングに切り替えます。
	ProtocolSyncWait Protocol = "sync_wait"
	// ProtocolSubmitPoll はジョブを投入してポーリングします。
	ProtocolSubmitPoll Protocol = "submit_poll"
	// ProtocolSingleShot は 1 回の呼び出しで画像を受け取ります。
	ProtocolSingleShot Protocol = "single_shot"
	// ProtocolMultiModal はマルチモーダルモデルの応答パートから画像を取り出します。
	ProtocolMultiModal Protocol = "multi_modal"
)

// Adapter は RequestSpec を 1 プロバイダーのプロトコルに変換し、
// 結果を GenerationResult に正規化します。
//
// 返すエラーは常に *domain.GenerationError です。
// 入力検証はネットワーク呼び出しより前に行います。
type Adapter interface {
	Name() string
	Protocol() Protocol
	Generate(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error)
}

// StrengthMapping は RequestSpec.Strength (参照画像への忠実度、1 に近いほど忠実) を
// プロバイダーのパラメータに変換する方式です。
type StrengthMapping string

const (
	// StrengthDirect は値をそのまま渡します (IP-Adapter の scale など)。
	StrengthDirect StrengthMapping = "direct"
	// StrengthInverted は 1 - s を渡します (img2img のノイズ強度など)。
	StrengthInverted StrengthMapping = "inverted"
	// StrengthNone は強度パラメータを持たないプロバイダーです。
	StrengthNone StrengthMapping = "none"
)

// Apply は s をプロバイダーの値に変換します。結果は小数点以下 4 桁に丸めます。
func (m StrengthMapping) Apply(s float64) float64 {
	s = utils.Clamp01(s)
	switch m {
	case StrengthInverted:
		return utils.RoundTo(1-s, 4)
	case StrengthNone:
		return 0
	}
	return utils.RoundTo(s, 4)
}

// validate はネットワーク呼び出し前の検証です。
func validate(provider string, spec domain.RequestSpec) error {
	if err := spec.Validate(); err != nil {
		ge := domain.AsGenerationError(err)
		if ge.Kind != domain.KindInvalidInput {
			ge = domain.Wrap(domain.KindInvalidInput, err, "invalid request")
		}
		return ge.WithProvider(provider)
	}
	return nil
}

// collect は 1 回の呼び出しで 1 枚しか返さないプロバイダーに対し、
// 要求枚数に達するまで順番に呼び出して結果をまとめます。
// シード指定時は i 回目の呼び出しに seed+i を使い、同じ画像が並ばないようにします。
// 使ったシードは providerMeta の seeds に残します。
func collect(ctx context.Context, spec domain.RequestSpec, once func(ctx context.Context, spec domain.RequestSpec) (*domain.GenerationResult, error)) (*domain.GenerationResult, error) {
	n := max(spec.OutputCount, 1)
	var (
		merged *domain.GenerationResult
		seeds  []int64
	)
	for i := 0; i < n; i++ {
		call := spec
		call.Seed = utils.OffsetSeed(spec.Seed, i)
		res, err := once(ctx, call)
		if err != nil {
			return nil, err
		}
		if call.Seed != nil {
			seeds = append(seeds, *call.Seed)
		}
		if merged == nil {
			merged = res
			continue
		}
		merged.Images = append(merged.Images, res.Images...)
	}
	if len(seeds) > 0 {
		merged.WithMeta("seeds", seeds)
	}
	return merged, nil
}

// attach は正規化で発生したエラーにプロバイダー名を付けます。
func attach(provider string, res *domain.GenerationResult, err error) (*domain.GenerationResult, error) {
	if err != nil {
		return nil, domain.AsGenerationError(err).WithProvider(provider)
	}
	return res, nil
}
