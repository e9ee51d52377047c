// Package poller は非同期ジョブの完了を待つ共通のポーリング状態機械を提供します。
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

const (
	// DefaultInterval はポーリング間隔です。
	DefaultInterval = 1500 * time.Millisecond
	// DefaultMaxAttempts は試行回数の上限です (既定値で約 90 秒)。
	DefaultMaxAttempts = 60
)

// FetchFunc はジョブの現在の状態を 1 回取得します。
// ネットワークエラーや 2xx 以外の応答はエラーとして返します。
type FetchFunc func(ctx context.Context, job *domain.GenerationJob) (domain.Snapshot, error)

// Poller はポーリングの間隔と上限を保持します。ステートレスで、並行利用できます。
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	// OnTick は各試行の後に呼ばれます (メトリクス用)。err は取得失敗時のみ非 nil です。
	OnTick func(provider string, attempt int, err error)
}

// New は既定値で Poller を生成します。
func New() *Poller {
	return &Poller{Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts}
}

// Poll は job が終端状態になるまで fetch を繰り返します。
//
// 各試行の前に Interval だけ待ちます。取得失敗も 1 回の試行として数え、
// カウンタは決して巻き戻しません。上限に達した場合はジョブを timed_out にして
// PollTimedOut を返します。failed / canceled は JobFailed です。
func (p *Poller) Poll(ctx context.Context, provider string, job *domain.GenerationJob, fetch FetchFunc) error {
	if job.Status.IsTerminal() {
		return outcome(provider, job)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			timer.Reset(p.Interval)
		}
		select {
		case <-ctx.Done():
			return cancelled(ctx, provider, job)
		case <-timer.C:
		}

		snap, err := fetch(ctx, job)
		if p.OnTick != nil {
			p.OnTick(provider, attempt, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx, provider, job)
			}
			slog.WarnContext(ctx, "ジョブ状態の取得に失敗しました。ポーリングを継続します",
				"provider", provider, "job_id", job.ID, "attempt", attempt, "error", err)
			continue
		}

		if err := job.Apply(snap); err != nil {
			return domain.Wrap(domain.KindUnexpected, err, "job state update rejected").WithProvider(provider)
		}
		if job.Status.IsTerminal() {
			slog.DebugContext(ctx, "ジョブが終端状態に達しました",
				"provider", provider, "job_id", job.ID, "status", job.Status, "attempts", attempt)
			return outcome(provider, job)
		}
	}

	_ = job.TimeOut()
	return domain.Errorf(domain.KindPollTimedOut, "job %s did not finish after %d polls", job.ID, maxAttempts).
		WithProvider(provider)
}

func outcome(provider string, job *domain.GenerationJob) error {
	switch job.Status {
	case domain.JobSucceeded:
		return nil
	case domain.JobFailed:
		return domain.Errorf(domain.KindJobFailed, "generation failed").WithProvider(provider).WithDetail(job.ErrorDetail)
	case domain.JobCanceled:
		return domain.Errorf(domain.KindJobFailed, "generation was canceled").WithProvider(provider).WithDetail(job.ErrorDetail)
	case domain.JobTimedOut:
		return domain.Errorf(domain.KindPollTimedOut, "job %s timed out", job.ID).WithProvider(provider)
	}
	return domain.Errorf(domain.KindUnexpected, "job %s is not terminal (%s)", job.ID, job.Status).WithProvider(provider)
}

// cancelled は呼び出し元のキャンセルを分類します。
// デッドライン超過は内部タイムアウト、それ以外は Unexpected です。
func cancelled(ctx context.Context, provider string, job *domain.GenerationJob) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		_ = job.TimeOut()
		return domain.Wrap(domain.KindPollTimedOut, err, "request deadline exceeded while polling").WithProvider(provider)
	}
	return domain.Wrap(domain.KindUnexpected, err, "polling canceled").WithProvider(provider)
}
