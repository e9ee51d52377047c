package domain

import "errors"

// JobStatus は非同期ジョブの状態です。
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
	JobTimedOut  JobStatus = "timed_out"
)

// ErrJobTerminal は終端状態のジョブを更新しようとしたときに返されます。
var ErrJobTerminal = errors.New("job already reached a terminal state")

// IsTerminal は状態が終端かどうかを返します。
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCanceled, JobTimedOut:
		return true
	}
	return false
}

// Snapshot はポーリング 1 回分で観測したジョブの状態です。
type Snapshot struct {
	Status      JobStatus
	Result      []string
	ErrorDetail string
}

// GenerationJob はプロバイダー側で進行中のジョブ 1 件を表します。
// 1 リクエストの処理中にだけ存在し、永続化されません。
type GenerationJob struct {
	ID        string
	Status    JobStatus
	StatusURL string
	// Result は Status == JobSucceeded のときのみ設定されます。
	Result []string
	// ErrorDetail は失敗またはキャンセル時のみ設定されます。
	ErrorDetail string
}

// NewJob は投入直後のジョブを生成します。初期状態はプロバイダーの申告に従います。
func NewJob(id, statusURL string, snap Snapshot) *GenerationJob {
	j := &GenerationJob{ID: id, StatusURL: statusURL, Status: JobPending}
	_ = j.Apply(snap)
	return j
}

// Apply は観測結果をジョブに反映します。終端状態のジョブは変更しません。
func (j *GenerationJob) Apply(snap Snapshot) error {
	if j.Status.IsTerminal() {
		return ErrJobTerminal
	}
	if snap.Status == "" {
		return nil
	}
	j.Status = snap.Status
	switch snap.Status {
	case JobSucceeded:
		j.Result = snap.Result
	case JobFailed, JobCanceled:
		j.ErrorDetail = snap.ErrorDetail
	}
	return nil
}

// TimeOut は試行上限に達したジョブを timed_out に遷移させます。
func (j *GenerationJob) TimeOut() error {
	if j.Status.IsTerminal() {
		return ErrJobTerminal
	}
	j.Status = JobTimedOut
	return nil
}
