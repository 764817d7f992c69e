// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, driver, upload, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeInvalidInput           = "INVALID_INPUT"
	ErrCodeProfileNotFound        = "PROFILE_NOT_FOUND"
	ErrCodeVerificationNotFound   = "VERIFICATION_NOT_FOUND"
	ErrCodeInvalidReviewStatus    = "INVALID_REVIEW_STATUS"
	ErrCodeMissingImage           = "MISSING_IMAGE"
	ErrCodeUploadFailed           = "UPLOAD_FAILED"
	ErrCodeUploadTooLarge         = "UPLOAD_TOO_LARGE"
	ErrCodeVerificationNotPending = "VERIFICATION_NOT_PENDING"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Please log in and try again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You don't have permission to view this page.",
		Category: "auth",
		Action:   "Ask an administrator for access.",
	}
}

// NewInvalidInputError は入力値エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("Invalid input: %s", reason),
		Category: "validation",
		Action:   "Check the highlighted fields and submit again.",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("Driver profile not found: %s", userID),
		Category: "driver",
		Action:   "Try refreshing the page.",
	}
}

// NewVerificationNotFoundError はポスター確認が見つからない場合のエラーを生成する。
func NewVerificationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeVerificationNotFound,
		Message:  fmt.Sprintf("Verification not found: %s", id),
		Category: "driver",
		Action:   "Reload the list of pending verifications.",
	}
}

// NewVerificationNotPendingError は審査済みの確認を再審査しようとした場合のエラーを生成する。
func NewVerificationNotPendingError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeVerificationNotPending,
		Message:  fmt.Sprintf("Verification has already been reviewed: %s", id),
		Category: "driver",
		Action:   "Reload the list of pending verifications.",
	}
}

// NewInvalidReviewStatusError は審査結果として不正な状態が指定された場合のエラーを生成する。
func NewInvalidReviewStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReviewStatus,
		Message:  fmt.Sprintf("Invalid review status: %s", status),
		Category: "validation",
		Action:   "Use either approved or rejected.",
	}
}

// NewMissingImageError は画像が未選択の場合のエラーを生成する。
func NewMissingImageError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingImage,
		Message:  "Please select an image to upload",
		Category: "upload",
		Action:   "Choose a photo and submit again.",
	}
}

// NewUploadFailedError はファイルアップロード失敗エラーを生成する。
func NewUploadFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  "Failed to upload image",
		Category: "upload",
		Action:   "Please wait a moment and try again.",
	}
}

// NewUploadTooLargeError はアップロードサイズ超過エラーを生成する。
func NewUploadTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeUploadTooLarge,
		Message:  fmt.Sprintf("Upload exceeds the maximum size of %d bytes", maxBytes),
		Category: "upload",
		Action:   "Resize the photo and try again.",
	}
}
