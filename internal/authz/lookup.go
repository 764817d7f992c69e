// Package authz は管理者権限の判定を提供する。
package authz

import (
	"context"
	"log/slog"
	"time"
)

// AdminFlagReader はdriver_profiles.is_adminの読み取りを抽象化する。
type AdminFlagReader interface {
	FindAdminFlag(ctx context.Context, userID string) (isAdmin bool, found bool, err error)
}

// Recorder は判定結果のメトリクス記録先。
type Recorder interface {
	RecordAdminLookupFailure()
	RecordAdminLookupLatency(duration time.Duration)
}

// Lookup はユーザーが管理者かどうかを判定する。
// 判定できない場合は常にfalseを返す。
type Lookup struct {
	profiles AdminFlagReader
	recorder Recorder
	logger   *slog.Logger
}

// NewLookup はLookupを生成する。recorderはnil可。
func NewLookup(profiles AdminFlagReader, recorder Recorder, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{profiles: profiles, recorder: recorder, logger: logger}
}

// IsAdmin はプロフィールのis_adminを返す。
// プロフィールが存在しない場合や読み取りに失敗した場合はfalse。
func (l *Lookup) IsAdmin(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}

	start := time.Now()
	isAdmin, found, err := l.profiles.FindAdminFlag(ctx, userID)
	if l.recorder != nil {
		l.recorder.RecordAdminLookupLatency(time.Since(start))
	}

	if err != nil {
		l.logger.ErrorContext(ctx, "admin lookup failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		if l.recorder != nil {
			l.recorder.RecordAdminLookupFailure()
		}
		return false
	}
	if !found {
		return false
	}
	return isAdmin
}
