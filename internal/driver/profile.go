package driver

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/repository"
	"github.com/hitoshi/driverdash/internal/storage"
)

// ProfileInput はプロフィール編集フォームの入力。
// is_admin、is_verifiedは含まない。
type ProfileInput struct {
	FirstName     string `validate:"max=100"`
	LastName      string `validate:"max=100"`
	Phone         string `validate:"max=30"`
	LicenseNumber string `validate:"max=50"`
	CarMake       string `validate:"max=50"`
	CarModel      string `validate:"max=50"`
	CarYear       *int   `validate:"omitempty,min=1900,max=2100"`
	CarColor      string `validate:"max=30"`
	CarPlate      string `validate:"max=20"`
}

// ProfileService はドライバープロフィールのサービス層。
type ProfileService struct {
	profiles repository.ProfileRepository
	store    storage.Store
	validate *validator.Validate
	now      func() time.Time
}

// NewProfileService はProfileServiceの新しいインスタンスを生成する。
func NewProfileService(profiles repository.ProfileRepository, store storage.Store) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		store:    store,
		validate: validator.New(),
		now:      time.Now,
	}
}

// GetOrCreate はプロフィールを返す。存在しない場合は既定値で作成する。
func (s *ProfileService) GetOrCreate(ctx context.Context, userID, email string) (*model.DriverProfile, error) {
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p != nil {
		return p, nil
	}

	now := s.now()
	created, err := s.profiles.Create(ctx, &model.DriverProfile{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return created, nil
}

// Update はプロフィールを更新する。carPhotoが指定された場合は車両写真を保存する。
// プロフィールが存在しない場合は作成する。
func (s *ProfileService) Update(ctx context.Context, userID, email string, in ProfileInput, carPhoto *Upload) (*model.DriverProfile, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewInvalidInputError(describeValidation(err))
	}

	p, err := s.GetOrCreate(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	if carPhoto != nil {
		now := s.now()
		key, err := uploadImage(ctx, s.store, BucketDriverUploads,
			objectPath("car-photos", userID, now, "", carPhoto.Name), carPhoto)
		if err != nil {
			return nil, err
		}
		p.CarPhotoURL = key
	}

	p.FirstName = strings.TrimSpace(in.FirstName)
	p.LastName = strings.TrimSpace(in.LastName)
	p.Phone = strings.TrimSpace(in.Phone)
	p.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	p.CarMake = strings.TrimSpace(in.CarMake)
	p.CarModel = strings.TrimSpace(in.CarModel)
	p.CarYear = in.CarYear
	p.CarColor = strings.TrimSpace(in.CarColor)
	p.CarPlate = strings.TrimSpace(in.CarPlate)
	p.UpdatedAt = s.now()

	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return p, nil
}

// describeValidation はvalidatorのエラーを利用者向けの短い説明に変換する。
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s is too long", fe.Field())
		}
		return fmt.Sprintf("%s is too large", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s is too small", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
