package domain

import (
	"log/slog"
	"strings"
)

const (
	// DefaultStrength は strength 未指定時に使う値です。
	DefaultStrength = 0.5
	// DefaultOutputCount は outputs 未指定時に使う値です。
	DefaultOutputCount = 1
	// MaxOutputCount は 1 リクエストで生成できる枚数の上限です。
	// 1 枚ずつしか返さないプロバイダーではこの回数だけ順に呼び出します。
	MaxOutputCount = 8
)

// GenerateInput はクライアントから届く生のリクエストです。
// JSON のフィールド名は既存のフロントエンドとの互換を保っています。
type GenerateInput struct {
	Provider string   `json:"provider,omitempty"`
	APIKey   string   `json:"apiKey"`
	Prompt   string   `json:"prompt"`
	Template string   `json:"template"`
	Product  string   `json:"product,omitempty"`
	Strength *float64 `json:"strength,omitempty"`
	Outputs  *int     `json:"outputs,omitempty"`
	Seed     *int64   `json:"seed,omitempty"`
}

// Image は正規化済みの画像ペイロードです。
// Data は data URL プレフィックスを含まない純粋な base64 文字列です。
type Image struct {
	Data     string
	MIMEType string
}

// IsZero は画像が空かどうかを返します。
func (i Image) IsZero() bool {
	return i.Data == ""
}

// RequestSpec はすべてのアダプターに渡される正規化済みの生成リクエストです。
type RequestSpec struct {
	APIKey        string
	Prompt        string
	TemplateImage Image
	ProductImage  *Image
	// Strength は参照画像への忠実度 (1 に近いほど参照画像に近い) です。
	// プロバイダーごとの変換は各アダプターが行います。
	Strength    float64
	OutputCount int
	Seed        *int64 // nil でランダム、値指定で固定
}

// Validate はネットワーク呼び出しの前に必須項目と値域を検証します。
func (s RequestSpec) Validate() error {
	if err := s.ValidateFields(); err != nil {
		return err
	}
	if s.TemplateImage.IsZero() {
		return Errorf(KindInvalidInput, "template image is required")
	}
	return nil
}

// ValidateFields は画像以外の項目だけを検証します。
// 画像の解決 (URL 取得など) より前に呼ばれます。
func (s RequestSpec) ValidateFields() error {
	switch {
	case strings.TrimSpace(s.APIKey) == "":
		return Errorf(KindInvalidInput, "apiKey is required")
	case strings.TrimSpace(s.Prompt) == "":
		return Errorf(KindInvalidInput, "prompt is required")
	case s.Strength < 0 || s.Strength > 1:
		return Errorf(KindInvalidInput, "strength must be between 0 and 1, got %v", s.Strength)
	case s.OutputCount < 1 || s.OutputCount > MaxOutputCount:
		return Errorf(KindInvalidInput, "outputs must be between 1 and %d, got %d", MaxOutputCount, s.OutputCount)
	}
	return nil
}

// LogValue は API キーと画像本体をログに出さないための slog.LogValuer 実装です。
func (s RequestSpec) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("prompt_len", len(s.Prompt)),
		slog.Int("template_b64_len", len(s.TemplateImage.Data)),
		slog.Bool("has_product", s.ProductImage != nil),
		slog.Float64("strength", s.Strength),
		slog.Int("outputs", s.OutputCount),
	}
	if s.Seed != nil {
		attrs = append(attrs, slog.Int64("seed", *s.Seed))
	}
	return slog.GroupValue(attrs...)
}
