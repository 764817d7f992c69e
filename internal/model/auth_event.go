package model

// AuthEventKind はIdentityバックエンドが通知するセッション変化の種類。
type AuthEventKind string

const (
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventUserUpdated    AuthEventKind = "USER_UPDATED"
	AuthEventInitialSession AuthEventKind = "INITIAL_SESSION"
	// AuthEventTokenRefreshed はアクセストークンの再発行を示す。
	// コントローラーでは「その他」の種別として扱われる。
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
)

// AuthEvent はセッション変化イベント。
// Sessionはサインアウト時や未ログイン時にnilとなる。
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}
