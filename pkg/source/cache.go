package source

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoCache は ristretto を使った ImageCacher の実装です。
// コストは値のバイト数で計算します。
type RistrettoCache struct {
	cache *ristretto.Cache[string, any]
}

// NewRistrettoCache は maxBytes を総容量とするキャッシュを生成します。
func NewRistrettoCache(maxBytes int64) (*RistrettoCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters:        1e5,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{cache: c}, nil
}

// Get はキーに紐づく値を返します。
func (r *RistrettoCache) Get(key string) (any, bool) {
	return r.cache.Get(key)
}

// Set は値を TTL 付きで保存します。ristretto の書き込みは非同期なので反映を待ちます。
func (r *RistrettoCache) Set(key string, value any, d time.Duration) {
	cost := int64(1)
	if b, ok := value.([]byte); ok {
		cost = int64(len(b))
	}
	r.cache.SetWithTTL(key, value, cost, d)
	r.cache.Wait()
}

// Close はキャッシュのバックグラウンド処理を停止します。
func (r *RistrettoCache) Close() {
	r.cache.Close()
}
