package model

import "time"

// DriverProfile はドライバーのプロフィールと車両情報を表す。
// IsAdminは管理者判定に使う唯一のフラグ。
type DriverProfile struct {
	ID            string
	UserID        string
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	LicenseNumber string
	CarMake       string
	CarModel      string
	CarYear       *int
	CarColor      string
	CarPlate      string
	CarPhotoURL   string
	IsVerified    bool
	IsAdmin       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FullName は表示用の氏名を返す。
func (p *DriverProfile) FullName() string {
	switch {
	case p.FirstName == "" && p.LastName == "":
		return ""
	case p.LastName == "":
		return p.FirstName
	case p.FirstName == "":
		return p.LastName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// Trip はドライバーが記録した走行を表す。
type Trip struct {
	ID             string
	DriverID       string
	StartLocation  string
	StartImageURL  string
	EndLocation    string
	EndImageURL    string
	MidwayImageURL string
	DistanceKm     float64
	StartTime      time.Time
	EndTime        time.Time
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VerificationStatus はポスター確認の審査状態。
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// IsReviewOutcome は審査結果として指定可能な状態かどうかを返す。
func (s VerificationStatus) IsReviewOutcome() bool {
	return s == VerificationApproved || s == VerificationRejected
}

// PosterVerification はドライバーが提出したポスター掲示の確認写真を表す。
type PosterVerification struct {
	ID          string
	DriverID    string
	ImageURL    string
	Status      VerificationStatus
	AdminNotes  string
	SubmittedAt time.Time
	ReviewedAt  *time.Time
	ReviewedBy  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
