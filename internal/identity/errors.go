package identity

import "errors"

// Error は認証バックエンドが返すエラー。
// Messageはそのまま利用者に表示できる文言。
type Error struct {
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return e.Message
}

// 定義済みエラー
var (
	ErrInvalidCredentials  = &Error{Code: "invalid_credentials", Message: "Invalid login credentials"}
	ErrEmailNotConfirmed   = &Error{Code: "email_not_confirmed", Message: "Email not confirmed"}
	ErrUserAlreadyExists   = &Error{Code: "user_already_exists", Message: "User already registered"}
	ErrWeakPassword        = &Error{Code: "weak_password", Message: "Password should be at least 6 characters"}
	ErrInvalidEmail        = &Error{Code: "validation_failed", Message: "Unable to validate email address: invalid format"}
	ErrInvalidToken        = &Error{Code: "bad_jwt", Message: "Invalid JWT"}
	ErrSessionNotFound     = &Error{Code: "session_not_found", Message: "Session from session_id claim in JWT does not exist"}
	ErrSessionMissing      = &Error{Code: "session_missing", Message: "Auth session missing!"}
	ErrInvalidConfirmation = &Error{Code: "otp_expired", Message: "Email link is invalid or has expired"}
)

// IsSessionGone はトークンやセッションが既に無効であることを示すエラーかどうかを返す。
func IsSessionGone(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrSessionNotFound)
}
