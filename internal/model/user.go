// Package model はドメインモデルを定義する。
package model

import "time"

// User はアプリケーションに登録されたアカウントを表す。
// パスワードはbcryptハッシュのみを保持する。
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsConfirmed はメールアドレスが確認済みかどうかを返す。
func (u *User) IsConfirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Session はユーザーのログインセッションを表す。
// AccessTokenはセッションIDを内包する署名付きトークン。
type Session struct {
	ID          string
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
