package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind は生成処理の失敗分類です。
type ErrorKind string

const (
	KindInvalidInput     ErrorKind = "invalid_input"
	KindProviderRejected ErrorKind = "provider_rejected"
	KindProviderWarming  ErrorKind = "provider_warming"
	KindRateLimited      ErrorKind = "rate_limited"
	KindJobFailed        ErrorKind = "job_failed"
	KindPollTimedOut     ErrorKind = "poll_timed_out"
	KindNoResult         ErrorKind = "no_result"
	KindUnexpected       ErrorKind = "unexpected"
)

// Retryable は呼び出し側が後で再試行してよい種別かどうかを返します。
// コア内部では再試行しません。
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindProviderWarming, KindRateLimited, KindPollTimedOut:
		return true
	}
	return false
}

// GenerationError はアダプター境界から返される構造化エラーです。
type GenerationError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	// Detail はプロバイダーが返した失敗理由などの補足です。
	Detail string
	// RetryAfter はプロバイダーが待機時間を示した場合にのみ設定されます。
	RetryAfter time.Duration
	Cause      error
}

func (e *GenerationError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Errorf は指定種別の GenerationError を生成します。
func Errorf(kind ErrorKind, format string, args ...any) *GenerationError {
	return &GenerationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap は cause を保持した GenerationError を生成します。
func Wrap(kind ErrorKind, cause error, message string) *GenerationError {
	return &GenerationError{Kind: kind, Message: message, Cause: cause}
}

// WithProvider はプロバイダー名を設定して自身を返します。
func (e *GenerationError) WithProvider(name string) *GenerationError {
	e.Provider = name
	return e
}

// WithDetail は補足情報を設定して自身を返します。
func (e *GenerationError) WithDetail(detail string) *GenerationError {
	e.Detail = detail
	return e
}

// WithRetryAfter は再試行までの推奨待機時間を設定して自身を返します。
func (e *GenerationError) WithRetryAfter(d time.Duration) *GenerationError {
	e.RetryAfter = d
	return e
}

// AsGenerationError は err から GenerationError を取り出します。
// 該当しないエラーは Unexpected として包みます。
func AsGenerationError(err error) *GenerationError {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	return Wrap(KindUnexpected, err, "unexpected error")
}

// KindOf は err の ErrorKind を返します。nil の場合は空文字です。
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsGenerationError(err).Kind
}
