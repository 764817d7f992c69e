package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/repository"
	"github.com/hitoshi/driverdash/internal/security"
	"github.com/hitoshi/driverdash/internal/storage"
)

// VerificationService はポスター確認の提出と審査のサービス層。
type VerificationService struct {
	verifications repository.VerificationRepository
	store         storage.Store
	sanitizer     security.TextSanitizer
	now           func() time.Time
}

// NewVerificationService はVerificationServiceの新しいインスタンスを生成する。
func NewVerificationService(verifications repository.VerificationRepository, store storage.Store, sanitizer security.TextSanitizer) *VerificationService {
	return &VerificationService{
		verifications: verifications,
		store:         store,
		sanitizer:     sanitizer,
		now:           time.Now,
	}
}

// Submit はポスター掲示の写真を保存し、審査待ちの確認を作成する。
func (s *VerificationService) Submit(ctx context.Context, driverID string, image *Upload) (*model.PosterVerification, error) {
	if image == nil {
		return nil, model.NewMissingImageError()
	}

	now := s.now()
	key, err := uploadImage(ctx, s.store, BucketVerificationUploads,
		objectPath("poster-verifications", driverID, now, "", image.Name), image)
	if err != nil {
		return nil, err
	}

	v := &model.PosterVerification{
		ID:          uuid.NewString(),
		DriverID:    driverID,
		ImageURL:    key,
		Status:      model.VerificationPending,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.verifications.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("ポスター確認の保存に失敗しました: %w", err)
	}
	return v, nil
}

// ListPending は審査待ちの確認を提出順に返す。
func (s *VerificationService) ListPending(ctx context.Context) ([]*model.PosterVerification, error) {
	list, err := s.verifications.ListByStatus(ctx, model.VerificationPending)
	if err != nil {
		return nil, fmt.Errorf("審査待ち一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListByDriver はドライバーの確認を新しい順に返す。
func (s *VerificationService) ListByDriver(ctx context.Context, driverID string) ([]*model.PosterVerification, error) {
	list, err := s.verifications.ListByDriverID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("ポスター確認の取得に失敗しました: %w", err)
	}
	return list, nil
}

// Review は確認を承認または却下する。
// statusはapprovedかrejectedのみ。審査済みの確認は更新しない。
func (s *VerificationService) Review(ctx context.Context, id string, status model.VerificationStatus, reviewerID, notes string) (*model.PosterVerification, error) {
	if !status.IsReviewOutcome() {
		return nil, model.NewInvalidReviewStatusError(string(status))
	}

	v, err := s.verifications.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ポスター確認の取得に失敗しました: %w", err)
	}
	if v == nil {
		return nil, model.NewVerificationNotFoundError(id)
	}

	now := s.now()
	v.Status = status
	v.AdminNotes = s.sanitizer.SanitizeText(notes)
	v.ReviewedAt = &now
	v.ReviewedBy = reviewerID
	v.UpdatedAt = now

	updated, err := s.verifications.UpdateReview(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("審査結果の保存に失敗しました: %w", err)
	}
	if !updated {
		return nil, model.NewVerificationNotPendingError(id)
	}
	return v, nil
}
