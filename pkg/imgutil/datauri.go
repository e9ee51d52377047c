package imgutil

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotImage はデータが画像として認識できない場合に返されます。
var ErrNotImage = errors.New("payload is not an image")

// DetectMIME はバイト列から画像の MIME タイプを推定します。
func DetectMIME(data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mimeType)
	}
	return mimeType, nil
}

// EncodeDataURI はバイト列を data URI に変換します。
func EncodeDataURI(mimeType string, data []byte) string {
	return DataURIFromBase64(mimeType, base64.StdEncoding.EncodeToString(data))
}

// DataURIFromBase64 は base64 文字列を data URI に包みます。
func DataURIFromBase64(mimeType, b64 string) string {
	return "data:" + mimeType + ";base64," + b64
}

// IsDataURI は文字列が data URI 形式かどうかを返します。
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// SplitDataURI は data URI を MIME タイプと base64 本体に分解します。
// プレフィックスがない場合は入力をそのまま本体として返します。
func SplitDataURI(s string) (mimeType, b64 string, err error) {
	if !IsDataURI(s) {
		return "", strings.TrimSpace(s), nil
	}
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return "", "", fmt.Errorf("malformed data URI: missing comma")
	}
	header = strings.TrimPrefix(header, "data:")
	if !strings.HasSuffix(header, ";base64") {
		return "", "", fmt.Errorf("malformed data URI: only base64 encoding is supported")
	}
	mimeType = strings.TrimSuffix(header, ";base64")
	// "image/png;charset=..." のようなパラメータは落とす
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType, strings.TrimSpace(payload), nil
}

// DecodeBase64 は標準形式と URL セーフ形式、パディング有無のいずれも受け付けます。
func DecodeBase64(b64 string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(b64)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// DecodeDataURI は data URI を MIME タイプとバイト列に復元します。
func DecodeDataURI(s string) (string, []byte, error) {
	mimeType, b64, err := SplitDataURI(s)
	if err != nil {
		return "", nil, err
	}
	data, err := DecodeBase64(b64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return mimeType, data, nil
}
