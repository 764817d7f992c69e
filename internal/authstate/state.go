// Package authstate は訪問者ごとのセッション状態を管理する。
// Controllerが認証バックエンドのイベントと管理者判定を突き合わせ、
// {identity, isAdmin, isLoading}を購読者とルートガードへ公開する。
package authstate

import (
	"context"

	"github.com/hitoshi/driverdash/internal/identity"
	"github.com/hitoshi/driverdash/internal/model"
)

// Identity はログイン中のユーザー。
type Identity struct {
	ID    string
	Email string
}

// State はセッション状態のスナップショット。
// IsAdminはIdentityが存在する場合のみtrueになり得る。
type State struct {
	Identity  *Identity
	IsAdmin   bool
	IsLoading bool
}

// Authenticated はログイン中かどうかを返す。
func (s State) Authenticated() bool {
	return s.Identity != nil
}

func (s State) clone() State {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

func initialState() State {
	return State{IsLoading: true}
}

func loggedOutState() State {
	return State{}
}

func identityFromSession(s *model.Session) Identity {
	return Identity{ID: s.UserID, Email: s.Email}
}

// Backend はControllerが利用する認証バックエンド。
type Backend interface {
	CurrentSession(ctx context.Context) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, opts identity.SignUpOptions) (*identity.SignUpResult, error)
	SignOut(ctx context.Context) error
	Subscribe(fn func(model.AuthEvent)) (unsubscribe func())
}

// AdminChecker は管理者判定。失敗時はfalseを返す実装であること。
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) bool
}

// Variant は通知の表示種別。
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice は利用者へのトースト通知。
type Notice struct {
	Title       string
	Description string
	Variant     Variant
}

// Notifier は通知の送信先。
type Notifier interface {
	Notify(n Notice)
}

// Recorder はController操作のメトリクス記録先。
type Recorder interface {
	RecordLogin(success bool)
	RecordSignup(success bool)
	RecordLogout(backendFailed bool)
	RecordReconcile(applied bool)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(bool)     {}
func (nopRecorder) RecordSignup(bool)    {}
func (nopRecorder) RecordLogout(bool)    {}
func (nopRecorder) RecordReconcile(bool) {}
