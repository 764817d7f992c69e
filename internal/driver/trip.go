package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/repository"
	"github.com/hitoshi/driverdash/internal/security"
	"github.com/hitoshi/driverdash/internal/storage"
)

// TripInput は走行記録フォームの入力。
type TripInput struct {
	StartLocation string  `validate:"required,max=255"`
	EndLocation   string  `validate:"required,max=255"`
	DistanceKm    float64 `validate:"gte=0,lte=10000"`
	Notes         string
}

// TripImages は走行記録に添付する3枚の写真。いずれも省略可。
type TripImages struct {
	Start  *Upload
	Midway *Upload
	End    *Upload
}

// TripService は走行記録のサービス層。
type TripService struct {
	trips     repository.TripRepository
	store     storage.Store
	sanitizer security.TextSanitizer
	validate  *validator.Validate
	now       func() time.Time
}

// NewTripService はTripServiceの新しいインスタンスを生成する。
func NewTripService(trips repository.TripRepository, store storage.Store, sanitizer security.TextSanitizer) *TripService {
	return &TripService{
		trips:     trips,
		store:     store,
		sanitizer: sanitizer,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Log は走行を記録する。開始・終了時刻は記録時の現在時刻とする。
func (s *TripService) Log(ctx context.Context, driverID string, in TripInput, images TripImages) (*model.Trip, error) {
	in.StartLocation = strings.TrimSpace(in.StartLocation)
	in.EndLocation = strings.TrimSpace(in.EndLocation)
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewInvalidInputError(describeValidation(err))
	}

	now := s.now()
	trip := &model.Trip{
		ID:            uuid.NewString(),
		DriverID:      driverID,
		StartLocation: in.StartLocation,
		EndLocation:   in.EndLocation,
		DistanceKm:    in.DistanceKm,
		StartTime:     now,
		EndTime:       now,
		Notes:         s.sanitizer.SanitizeText(in.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	slots := []struct {
		name   string
		upload *Upload
		dest   *string
	}{
		{"start", images.Start, &trip.StartImageURL},
		{"midway", images.Midway, &trip.MidwayImageURL},
		{"end", images.End, &trip.EndImageURL},
	}
	for _, slot := range slots {
		if slot.upload == nil {
			continue
		}
		key, err := uploadImage(ctx, s.store, BucketTripUploads,
			objectPath("trip-images", driverID, now, slot.name, slot.upload.Name), slot.upload)
		if err != nil {
			return nil, err
		}
		*slot.dest = key
	}

	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, fmt.Errorf("走行記録の保存に失敗しました: %w", err)
	}
	return trip, nil
}

// List はドライバーの走行記録を新しい順に返す。
func (s *TripService) List(ctx context.Context, driverID string) ([]*model.Trip, error) {
	trips, err := s.trips.ListByDriverID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("走行記録の取得に失敗しました: %w", err)
	}
	return trips, nil
}

// TotalDistance は走行距離の合計を返す。
func TotalDistance(trips []*model.Trip) float64 {
	var total float64
	for _, t := range trips {
		total += t.DistanceKm
	}
	return total
}
