package utils

import "math"

// SeedToPtrInt32 は *int64 のシードを SDK 用の *int32 に変換します。
// nil と int32 の範囲外の値は nil を返します。範囲外の値を切り詰めると別のシードと衝突するためです。
func SeedToPtrInt32(seed *int64) *int32 {
	if seed == nil || !FitsInt32(*seed) {
		return nil
	}
	v := int32(*seed)
	return &v
}

// FitsInt32 は v が int32 で表せるかどうかを返します。
func FitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// CloneSeed はシードのコピーを返します。ペイロード間でポインタを共有しないためのものです。
func CloneSeed(seed *int64) *int64 {
	if seed == nil {
		return nil
	}
	v := *seed
	return &v
}

// OffsetSeed は seed に offset を加えたコピーを返します。nil はそのまま nil です。
func OffsetSeed(seed *int64, offset int) *int64 {
	if seed == nil {
		return nil
	}
	v := *seed + int64(offset)
	return &v
}

// RoundTo は v を小数点以下 places 桁に丸めます。
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Clamp01 は v を [0,1] に収めます。
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
