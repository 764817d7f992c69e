package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// DemoAccount はデモ用のアカウント。
type DemoAccount struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	IsAdmin   bool
}

// DemoAccounts はSeedDemoAccountsが作成するアカウント。
var DemoAccounts = []DemoAccount{
	{Email: "driver@example.com", Password: "Password123!", FirstName: "Demo", LastName: "Driver"},
	{Email: "admin@example.com", Password: "Admin123!", FirstName: "Admin", LastName: "User", IsAdmin: true},
}

// Seeder はデモアカウントを作成する。
type Seeder struct {
	users      repository.UserRepository
	profiles   repository.ProfileRepository
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

// NewSeeder はSeederの新しいインスタンスを生成する。bcryptCostが0の場合はbcrypt.DefaultCost。
func NewSeeder(users repository.UserRepository, profiles repository.ProfileRepository, bcryptCost int, logger *slog.Logger) *Seeder {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Seeder{
		users:      users,
		profiles:   profiles,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// SeedDemoAccounts はデモアカウントとプロフィールを作成する。
// すべてのプロフィールが既に存在する場合は何もしない。
// 作成したアカウント数を返す。
func (s *Seeder) SeedDemoAccounts(ctx context.Context) (int, error) {
	emails := make([]string, len(DemoAccounts))
	for i, a := range DemoAccounts {
		emails[i] = a.Email
	}
	existing, err := s.profiles.CountByEmails(ctx, emails)
	if err != nil {
		return 0, fmt.Errorf("既存プロフィールの確認に失敗しました: %w", err)
	}
	if existing >= len(DemoAccounts) {
		s.logger.Info("demo accounts already exist, skipping")
		return 0, nil
	}

	created := 0
	for _, a := range DemoAccounts {
		ok, err := s.seedAccount(ctx, a)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	s.logger.Info("demo accounts seeded", slog.Int("created", created))
	return created, nil
}

// seedAccount はアカウントとプロフィールを作成する。
// ユーザーが既に存在する場合はプロフィールのみ補完する。
func (s *Seeder) seedAccount(ctx context.Context, a DemoAccount) (bool, error) {
	now := s.now()
	created := false

	user, err := s.users.FindByEmail(ctx, a.Email)
	if err != nil {
		return false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), s.bcryptCost)
		if err != nil {
			return false, fmt.Errorf("failed to hash password: %w", err)
		}
		user = &model.User{
			ID:               uuid.NewString(),
			Email:            a.Email,
			PasswordHash:     string(hash),
			EmailConfirmedAt: &now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return false, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
		}
		created = true
	}

	p, err := s.profiles.FindByUserID(ctx, user.ID)
	if err != nil {
		return created, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p != nil {
		return created, nil
	}
	if _, err := s.profiles.Create(ctx, &model.DriverProfile{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		IsAdmin:   a.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return created, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return created, nil
}
