package source

import (
	"context"
	"io"
	"time"
)

// HTTPClient は URL から画像を取得するためのインターフェースです。
// go-http-kit の httpkit クライアントがこれを満たします。
type HTTPClient interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// ObjectReader は gs:// や s3:// のオブジェクトを読み出すためのインターフェースです。
// go-remote-io の remoteio.InputReader がこれを満たします。
type ObjectReader interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// ImageCacher は、取得済みの参照画像をキャッシュするためのインターフェースです。
type ImageCacher interface {
	// Get は、指定されたキーに紐づくアイテムを取得します。
	Get(key string) (any, bool)
	// Set は、指定されたキーと値、有効期限でアイテムを保存します。
	Set(key string, value any, d time.Duration)
}
