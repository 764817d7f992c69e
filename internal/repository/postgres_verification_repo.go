package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/driverdash/internal/model"
)

// PostgresVerificationRepo はPostgreSQLを使用したポスター確認リポジトリ。
type PostgresVerificationRepo struct {
	db *sql.DB
}

// NewPostgresVerificationRepo はPostgresVerificationRepoを生成する。
func NewPostgresVerificationRepo(db *sql.DB) *PostgresVerificationRepo {
	return &PostgresVerificationRepo{db: db}
}

const verificationColumns = `id, driver_id, image_url, status, admin_notes, submitted_at,
	reviewed_at, reviewed_by, created_at, updated_at`

// FindByID は指定IDの確認を取得する。見つからない場合はnilを返す。
func (r *PostgresVerificationRepo) FindByID(ctx context.Context, id string) (*model.PosterVerification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM poster_verifications WHERE id = $1`,
		id,
	)
	v, err := scanVerification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification: %w", err)
	}
	return v, nil
}

// Create は確認を作成する。
func (r *PostgresVerificationRepo) Create(ctx context.Context, v *model.PosterVerification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO poster_verifications (id, driver_id, image_url, status, admin_notes,
			submitted_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.DriverID, v.ImageURL, string(v.Status), nullString(v.AdminNotes),
		v.SubmittedAt, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification: %w", err)
	}
	return nil
}

// ListByStatus は指定状態の確認をsubmitted_at昇順で返す。
func (r *PostgresVerificationRepo) ListByStatus(ctx context.Context, status model.VerificationStatus) ([]*model.PosterVerification, error) {
	return r.list(ctx,
		`SELECT `+verificationColumns+` FROM poster_verifications WHERE status = $1 ORDER BY submitted_at ASC`,
		string(status),
	)
}

// ListByDriverID はドライバーの確認をsubmitted_at降順で返す。
func (r *PostgresVerificationRepo) ListByDriverID(ctx context.Context, driverID string) ([]*model.PosterVerification, error) {
	return r.list(ctx,
		`SELECT `+verificationColumns+` FROM poster_verifications WHERE driver_id = $1 ORDER BY submitted_at DESC`,
		driverID,
	)
}

// UpdateReview は審査結果を保存する。
// status = 'pending' の行のみを更新し、既に審査済みの場合はfalseを返す。
func (r *PostgresVerificationRepo) UpdateReview(ctx context.Context, v *model.PosterVerification) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE poster_verifications
		 SET status = $2, admin_notes = $3, reviewed_at = $4, reviewed_by = $5, updated_at = $6
		 WHERE id = $1 AND status = 'pending'`,
		v.ID, string(v.Status), nullString(v.AdminNotes), v.ReviewedAt, nullString(v.ReviewedBy), v.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update verification review: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *PostgresVerificationRepo) list(ctx context.Context, query string, args ...any) ([]*model.PosterVerification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer rows.Close()

	var result []*model.PosterVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate verifications: %w", err)
	}
	return result, nil
}

func scanVerification(row rowScanner) (*model.PosterVerification, error) {
	v := &model.PosterVerification{}
	var (
		status     string
		notes      sql.NullString
		reviewedAt sql.NullTime
		reviewedBy sql.NullString
	)
	if err := row.Scan(
		&v.ID, &v.DriverID, &v.ImageURL, &status, &notes, &v.SubmittedAt,
		&reviewedAt, &reviewedBy, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	v.Status = model.VerificationStatus(status)
	v.AdminNotes = notes.String
	v.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		v.ReviewedAt = &t
	}
	return v, nil
}

// compile-time interface check
var _ VerificationRepository = (*PostgresVerificationRepo)(nil)
