package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
)

// Verifier はユーザー名とパスワードの組を検証します。
type Verifier interface {
	Verify(ctx context.Context, username, password string) bool
}

// StaticVerifier は設定ファイルのユーザー一覧で検証します。
type StaticVerifier struct {
	hashes map[string]string
	// dummy は未登録ユーザーでも同じだけ計算するためのハッシュです。
	dummy string
}

// NewStaticVerifier は users のハッシュを検査して StaticVerifier を生成します。
func NewStaticVerifier(users []config.UserConfig) (*StaticVerifier, error) {
	v := &StaticVerifier{hashes: make(map[string]string, len(users))}
	for _, u := range users {
		if _, _, _, err := decodeHash(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
		v.hashes[u.Username] = u.PasswordHash
		if v.dummy == "" {
			v.dummy = u.PasswordHash
		}
	}
	return v, nil
}

func (v *StaticVerifier) Verify(ctx context.Context, username, password string) bool {
	hash, known := v.hashes[username]
	if !known {
		if v.dummy != "" {
			_, _ = VerifyPassword(password, v.dummy)
		}
		slog.InfoContext(ctx, "未登録のユーザーによるログイン試行です")
		return false
	}

	ok, err := VerifyPassword(password, hash)
	if err != nil {
		slog.ErrorContext(ctx, "パスワードハッシュの検証に失敗しました", "username", username, "error", err)
		return false
	}
	return ok
}
