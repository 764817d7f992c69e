// Package handler はHTTPハンドラーとページ描画を提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/driverdash/internal/authstate"
	"github.com/hitoshi/driverdash/internal/guard"
	"github.com/hitoshi/driverdash/internal/identity"
	"github.com/hitoshi/driverdash/internal/visitor"
)

// 認証ページの通知文言
const (
	noticeConfirmFailed    = "Email confirmation failed"
	noticeConfirmed        = "Email confirmed"
	noticeConfirmedDesc    = "Your email address has been confirmed"
	noticePasswordUpdated  = "Password updated"
	noticePasswordUpdDesc  = "Your password has been changed"
	noticePasswordFailed   = "Password update failed"
	defaultAfterSignupPath = "/dashboard"
)

// SessionPersister は訪問者のアクセストークンをCookieへ反映する。
// visitor.Registryが実装する。
type SessionPersister interface {
	PersistSession(w http.ResponseWriter, r *http.Request, v *visitor.Visitor)
}

// AuthHandler はログイン、サインアップ、ログアウトとメール確認のハンドラー。
type AuthHandler struct {
	sessions SessionPersister
	renderer *Renderer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionPersister, renderer *Renderer) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		renderer: renderer,
	}
}

type loginPageData struct {
	From string
}

// Index はトップページを表示する。
// GET /
func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageIndex, "Welcome", nil)
}

// LoginPage はログインフォームを表示する。
// GET /login?from=/dashboard
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get(guard.FromParam)
	if !guard.IsLocalPath(from) {
		from = ""
	}
	h.renderer.Render(w, r, http.StatusOK, pageLogin, "Log in", loginPageData{From: from})
}

// Login はメールアドレスとパスワードでログインする。
// 成功時はfromの指す画面へ、失敗時はログインフォームへ戻す。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	v, ok := requestVisitor(w, r)
	if !ok {
		return
	}
	if err := parseForm(r); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue(guard.FromParam)
	if !guard.IsLocalPath(from) {
		from = ""
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	if !v.Controller.Login(r.Context(), email, password) {
		seeOther(w, r, guard.LoginURL(from))
		return
	}
	h.sessions.PersistSession(w, r, v)
	seeOther(w, r, guard.ReturnTo(from))
}

// SignupPage はサインアップフォームを表示する。
// GET /signup
func (h *AuthHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageSignup, "Sign up", nil)
}

// Signup はアカウントを作成する。
// 確認なしでセッションが発行された場合はダッシュボードへ、
// メール確認が必要な場合はログインフォームへ遷移する。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	v, ok := requestVisitor(w, r)
	if !ok {
		return
	}
	if err := parseForm(r); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	result, err := v.Controller.Signup(r.Context(), email, password)
	if err != nil {
		seeOther(w, r, "/signup")
		return
	}
	if result.Session == nil {
		seeOther(w, r, "/login")
		return
	}
	h.sessions.PersistSession(w, r, v)
	seeOther(w, r, defaultAfterSignupPath)
}

// Logout はログアウトする。バックエンドの失敗に関わらずCookieは削除する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	v, ok := requestVisitor(w, r)
	if !ok {
		return
	}
	v.Controller.Logout(r.Context())
	h.sessions.PersistSession(w, r, v)
	seeOther(w, r, "/")
}

// ConfirmEmail は確認リンクのトークンでメールアドレスを確認し、ログインする。
// GET /auth/confirm?token=xxx&redirect_to=/dashboard
func (h *AuthHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	v, ok := requestVisitor(w, r)
	if !ok {
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		notify(r, noticeConfirmFailed, identity.ErrInvalidConfirmation.Message, authstate.VariantDestructive)
		seeOther(w, r, "/login")
		return
	}

	if _, err := v.Client.ConfirmEmail(r.Context(), token); err != nil {
		notify(r, noticeConfirmFailed, identityMessage(err), authstate.VariantDestructive)
		seeOther(w, r, "/login")
		return
	}

	h.sessions.PersistSession(w, r, v)
	notify(r, noticeConfirmed, noticeConfirmedDesc, authstate.VariantDefault)
	seeOther(w, r, guard.ReturnTo(r.URL.Query().Get("redirect_to")))
}

// ChangePassword はログイン中ユーザーのパスワードを変更する。
// POST /account/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	v, ok := requestVisitor(w, r)
	if !ok {
		return
	}
	if err := parseForm(r); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if err := v.Client.UpdatePassword(r.Context(), r.PostFormValue("password")); err != nil {
		notify(r, noticePasswordFailed, identityMessage(err), authstate.VariantDestructive)
		if errors.Is(err, identity.ErrSessionMissing) || identity.IsSessionGone(err) {
			h.sessions.PersistSession(w, r, v)
			seeOther(w, r, guard.LoginURL("/dashboard"))
			return
		}
		seeOther(w, r, "/dashboard")
		return
	}

	notify(r, noticePasswordUpdated, noticePasswordUpdDesc, authstate.VariantDefault)
	seeOther(w, r, "/dashboard")
}

// identityMessage は認証バックエンドのエラーを利用者向けの文言に変換する。
func identityMessage(err error) string {
	var idErr *identity.Error
	if errors.As(err, &idErr) {
		return idErr.Message
	}
	slog.Error("identity request failed", slog.String("error", err.Error()))
	return noticeUnexpected
}
