package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/driverdash/internal/model"
)

// PostgresTripRepo はPostgreSQLを使用した走行記録リポジトリ。
type PostgresTripRepo struct {
	db *sql.DB
}

// NewPostgresTripRepo はPostgresTripRepoを生成する。
func NewPostgresTripRepo(db *sql.DB) *PostgresTripRepo {
	return &PostgresTripRepo{db: db}
}

// Create は走行記録を作成する。
func (r *PostgresTripRepo) Create(ctx context.Context, t *model.Trip) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO trips (id, driver_id, start_location, start_image_url, end_location, end_image_url,
			midway_image_url, distance_km, start_time, end_time, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.DriverID, t.StartLocation, nullString(t.StartImageURL), t.EndLocation,
		nullString(t.EndImageURL), nullString(t.MidwayImageURL), t.DistanceKm,
		t.StartTime, t.EndTime, nullString(t.Notes), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

// ListByDriverID はドライバーの走行記録をcreated_at降順で返す。
func (r *PostgresTripRepo) ListByDriverID(ctx context.Context, driverID string) ([]*model.Trip, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, driver_id, start_location, start_image_url, end_location, end_image_url,
			midway_image_url, distance_km, start_time, end_time, notes, created_at, updated_at
		 FROM trips
		 WHERE driver_id = $1
		 ORDER BY created_at DESC`,
		driverID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []*model.Trip
	for rows.Next() {
		t := &model.Trip{}
		var startImg, endImg, midwayImg, notes sql.NullString
		if err := rows.Scan(
			&t.ID, &t.DriverID, &t.StartLocation, &startImg, &t.EndLocation, &endImg,
			&midwayImg, &t.DistanceKm, &t.StartTime, &t.EndTime, &notes, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		t.StartImageURL = startImg.String
		t.EndImageURL = endImg.String
		t.MidwayImageURL = midwayImg.String
		t.Notes = notes.String
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trips: %w", err)
	}
	return trips, nil
}

// compile-time interface check
var _ TripRepository = (*PostgresTripRepo)(nil)
