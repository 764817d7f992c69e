// Package cleanup は認証データの自動削除ジョブを提供する。
// 期限切れセッションと、確認されないまま保持期間を過ぎたアカウントを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// 削除対象の名前。メトリクスのラベルとログに使う。
const (
	TargetSessions         = "sessions"
	TargetUnconfirmedUsers = "unconfirmed_users"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Recorder は削除件数を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordCleanupDeleted(target string, count int64)
}

// CleanupJob は期限切れセッションと未確認アカウントの削除ジョブ。
// 冪等な削除処理で、何度実行しても結果は変わらない。
type CleanupJob struct {
	db       Executor
	logger   *slog.Logger
	recorder Recorder

	// UnconfirmedRetention は未確認アカウントを保持する期間（デフォルト: 7日）。
	UnconfirmedRetention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(db Executor, recorder Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                   db,
		logger:               logger,
		recorder:             recorder,
		UnconfirmedRetention: 7 * 24 * time.Hour,
	}
}

// Run は期限切れセッションを削除し、続いて未確認アカウントを削除する。
// セッションの削除に失敗した場合はアカウントの削除を行わない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, err := j.exec(ctx, TargetSessions,
		`DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return err
	}

	retention := fmt.Sprintf("%d seconds", int64(j.UnconfirmedRetention/time.Second))
	users, err := j.exec(ctx, TargetUnconfirmedUsers,
		`DELETE FROM users WHERE email_confirmed_at IS NULL AND created_at < now() - $1::interval`,
		retention)
	if err != nil {
		return err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_unconfirmed_users", users),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) exec(ctx context.Context, target, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("クリーンアップの実行に失敗しました",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%s のクリーンアップに失敗: %w", target, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s の削除件数の取得に失敗: %w", target, err)
	}
	if j.recorder != nil {
		j.recorder.RecordCleanupDeleted(target, deleted)
	}
	return deleted, nil
}

// Scheduler はcron式に従ってCleanupJobを実行する。
type Scheduler struct {
	job    *CleanupJob
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler はcron式（5フィールドまたは@hourlyなどの記述子）からSchedulerを生成する。
// 式が不正な場合はエラーを返す。
func NewScheduler(job *CleanupJob, spec string, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		job:    job,
		cron:   cron.New(),
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start は起動直後に1回ジョブを実行し、以降はスケジュールに従って実行する。
// ctxがキャンセルされるまでブロックし、実行中のジョブの完了を待って戻る。
func (s *Scheduler) Start(ctx context.Context) {
	s.runOnce()
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// runOnce はジョブを1回実行する。失敗はログに記録するのみ。
func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := s.job.Run(ctx); err != nil {
		s.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
