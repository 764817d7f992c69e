// Package guard はセッション状態に基づくルートガードを提供する。
// 判定はDecideに集約し、MiddlewareがHTTPのリダイレクトと待機ページに変換する。
package guard

import (
	"net/url"
	"strings"

	"github.com/hitoshi/driverdash/internal/authstate"
)

const (
	loginPath     = "/login"
	dashboardPath = "/dashboard"

	// FromParam はログイン後の戻り先を運ぶクエリパラメータ名。
	FromParam = "from"
)

// Kind はガードの種類。
type Kind int

const (
	// Protected はログイン必須のページ。
	Protected Kind = iota
	// Admin は管理者専用のページ。
	Admin
	// PublicOnly はログイン前のみ表示するページ（ログイン・サインアップ）。
	PublicOnly
	// Index はトップページ。
	Index
)

func (k Kind) String() string {
	switch k {
	case Protected:
		return "protected"
	case Admin:
		return "admin"
	case PublicOnly:
		return "public_only"
	case Index:
		return "index"
	default:
		return "unknown"
	}
}

// Outcome は判定結果の種類。
type Outcome int

const (
	Render Outcome = iota
	Loading
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Navigation は判定対象のナビゲーション。
// Pathはクエリを含む要求パス、ReturnToは記録済みの戻り先。
type Navigation struct {
	Path     string
	ReturnTo string
}

// Decision はガードの判定結果。
// Fromはログインページへ運ぶ戻り先（Protectedのリダイレクト時のみ）。
type Decision struct {
	Outcome  Outcome
	Location string
	From     string
}

// Decide はガードの種類とセッション状態から遷移を決定する。
// IsLoadingの間はどのガードも待機を返す。
func Decide(kind Kind, st authstate.State, nav Navigation) Decision {
	if st.IsLoading {
		return Decision{Outcome: Loading}
	}

	switch kind {
	case Protected:
		if !st.Authenticated() {
			from := nav.Path
			if !IsLocalPath(from) {
				from = dashboardPath
			}
			return Decision{Outcome: Redirect, Location: LoginURL(from), From: from}
		}
	case Admin:
		if !st.Authenticated() || !st.IsAdmin {
			return Decision{Outcome: Redirect, Location: dashboardPath}
		}
	case PublicOnly:
		if st.Authenticated() {
			return Decision{Outcome: Redirect, Location: ReturnTo(nav.ReturnTo)}
		}
	case Index:
		if st.Authenticated() {
			return Decision{Outcome: Redirect, Location: dashboardPath}
		}
	}
	return Decision{Outcome: Render}
}

// LoginURL は戻り先を付けたログインページのURLを返す。
func LoginURL(from string) string {
	if from == "" {
		return loginPath
	}
	return loginPath + "?" + url.Values{FromParam: {from}}.Encode()
}

// ReturnTo は戻り先として安全なパスを返す。不正な値は/dashboardになる。
func ReturnTo(from string) string {
	if IsLocalPath(from) {
		return from
	}
	return dashboardPath
}

// IsLocalPath はサイト内の絶対パスかどうかを判定する。
// スキーム付きURL、プロトコル相対URL、バックスラッシュを含む値は拒否する。
func IsLocalPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	if strings.HasPrefix(p, "//") || strings.ContainsAny(p, "\\\r\n") {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
