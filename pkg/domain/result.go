package domain

// GenerationResult はプロバイダーに依存しない統一レスポンスです。
type GenerationResult struct {
	// Images は URL または自己完結した data URI の列です。成功時は必ず 1 件以上です。
	Images []string `json:"images"`
	// ProviderMeta は診断用の情報 (モデル名、ジョブ ID など) です。
	ProviderMeta map[string]any `json:"providerMeta,omitempty"`
}

// WithMeta は ProviderMeta にキーを追加して自身を返します。
func (r *GenerationResult) WithMeta(key string, value any) *GenerationResult {
	if r.ProviderMeta == nil {
		r.ProviderMeta = make(map[string]any)
	}
	r.ProviderMeta[key] = value
	return r
}
