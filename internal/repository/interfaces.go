// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/driverdash/internal/model"
)

// UserRepository はアカウントデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// MarkEmailConfirmed はメールアドレスを確認済みにする。
	MarkEmailConfirmed(ctx context.Context, id string, at time.Time) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend はセッションの有効期限を延長する。
	Extend(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// ProfileRepository はドライバープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はユーザーIDでプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.DriverProfile, error)

	// FindAdminFlag はユーザーのis_adminを取得する。
	// 行が存在しない場合はfalseとfound=falseを返す。
	FindAdminFlag(ctx context.Context, userID string) (isAdmin bool, found bool, err error)

	// Create はプロフィールを作成する。user_idが重複する場合は既存行を返す。
	Create(ctx context.Context, profile *model.DriverProfile) (*model.DriverProfile, error)

	// Update は編集可能な項目を更新する。is_admin、is_verifiedは更新しない。
	Update(ctx context.Context, profile *model.DriverProfile) error

	// List は全プロフィールを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.DriverProfile, error)

	// CountByEmails は指定メールアドレスのいずれかを持つプロフィール数を返す。
	CountByEmails(ctx context.Context, emails []string) (int, error)
}

// TripRepository は走行記録の永続化インターフェース。
type TripRepository interface {
	// Create は走行記録を作成する。
	Create(ctx context.Context, trip *model.Trip) error
	// ListByDriverID はドライバーの走行記録をcreated_at降順で返す。
	ListByDriverID(ctx context.Context, driverID string) ([]*model.Trip, error)
}

// VerificationRepository はポスター確認の永続化インターフェース。
type VerificationRepository interface {
	// FindByID は指定IDの確認を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PosterVerification, error)
	// Create は確認を作成する。
	Create(ctx context.Context, v *model.PosterVerification) error
	// ListByStatus は指定状態の確認をsubmitted_at昇順で返す。
	ListByStatus(ctx context.Context, status model.VerificationStatus) ([]*model.PosterVerification, error)
	// ListByDriverID はドライバーの確認をsubmitted_at降順で返す。
	ListByDriverID(ctx context.Context, driverID string) ([]*model.PosterVerification, error)
	// UpdateReview は審査結果を保存する。pending以外の行は更新せずfalseを返す。
	UpdateReview(ctx context.Context, v *model.PosterVerification) (bool, error)
}
