package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/driverdash/internal/model"
	"github.com/lib/pq"
)

// PostgresProfileRepo はPostgreSQLを使用したドライバープロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, user_id, first_name, last_name, email, phone, license_number,
	car_make, car_model, car_year, car_color, car_plate, car_photo_url,
	is_verified, is_admin, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// FindByUserID はユーザーIDでプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.DriverProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM driver_profiles WHERE user_id = $1`,
		userID,
	)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find driver profile: %w", err)
	}
	return profile, nil
}

// FindAdminFlag はユーザーのis_adminのみを取得する。
func (r *PostgresProfileRepo) FindAdminFlag(ctx context.Context, userID string) (bool, bool, error) {
	var isAdmin bool
	err := r.db.QueryRowContext(ctx,
		`SELECT is_admin FROM driver_profiles WHERE user_id = $1`,
		userID,
	).Scan(&isAdmin)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read admin flag: %w", err)
	}
	return isAdmin, true, nil
}

// Create はプロフィールを作成する。
// 同一user_idの行が既に存在する場合は挿入せず既存行を返す。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.DriverProfile) (*model.DriverProfile, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO driver_profiles (id, user_id, first_name, last_name, email, phone, license_number,
			car_make, car_model, car_year, car_color, car_plate, car_photo_url,
			is_verified, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.ID, p.UserID, p.FirstName, p.LastName, p.Email,
		nullString(p.Phone), nullString(p.LicenseNumber),
		nullString(p.CarMake), nullString(p.CarModel), nullInt(p.CarYear),
		nullString(p.CarColor), nullString(p.CarPlate), nullString(p.CarPhotoURL),
		p.IsVerified, p.IsAdmin, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert driver profile: %w", err)
	}

	created, err := r.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("driver profile disappeared after insert: %s", p.UserID)
	}
	return created, nil
}

// Update は編集可能な項目を更新する。is_admin、is_verifiedは対象外。
func (r *PostgresProfileRepo) Update(ctx context.Context, p *model.DriverProfile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE driver_profiles
		 SET first_name = $2, last_name = $3, phone = $4, license_number = $5,
		     car_make = $6, car_model = $7, car_year = $8, car_color = $9,
		     car_plate = $10, car_photo_url = $11, updated_at = $12
		 WHERE user_id = $1`,
		p.UserID, p.FirstName, p.LastName,
		nullString(p.Phone), nullString(p.LicenseNumber),
		nullString(p.CarMake), nullString(p.CarModel), nullInt(p.CarYear),
		nullString(p.CarColor), nullString(p.CarPlate), nullString(p.CarPhotoURL),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update driver profile: %w", err)
	}
	return requireRow(result, "driver profile", p.UserID)
}

// List は全プロフィールを作成日時の昇順で返す。
func (r *PostgresProfileRepo) List(ctx context.Context) ([]*model.DriverProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM driver_profiles ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list driver profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.DriverProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate driver profiles: %w", err)
	}
	return profiles, nil
}

// CountByEmails は指定メールアドレスのいずれかを持つプロフィール数を返す。
func (r *PostgresProfileRepo) CountByEmails(ctx context.Context, emails []string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM driver_profiles WHERE email = ANY($1)`,
		pq.Array(emails),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count driver profiles: %w", err)
	}
	return count, nil
}

func scanProfile(row rowScanner) (*model.DriverProfile, error) {
	p := &model.DriverProfile{}
	var (
		phone, license, make_, carModel, color, plate, photo sql.NullString
		year                                                 sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Email, &phone, &license,
		&make_, &carModel, &year, &color, &plate, &photo,
		&p.IsVerified, &p.IsAdmin, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Phone = phone.String
	p.LicenseNumber = license.String
	p.CarMake = make_.String
	p.CarModel = carModel.String
	p.CarColor = color.String
	p.CarPlate = plate.String
	p.CarPhotoURL = photo.String
	if year.Valid {
		y := int(year.Int64)
		p.CarYear = &y
	}
	return p, nil
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
