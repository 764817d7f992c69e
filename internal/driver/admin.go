package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/repository"
)

// AdminService は管理者向けのドライバー一覧のサービス層。
type AdminService struct {
	profiles repository.ProfileRepository
}

// NewAdminService はAdminServiceの新しいインスタンスを生成する。
func NewAdminService(profiles repository.ProfileRepository) *AdminService {
	return &AdminService{profiles: profiles}
}

// ListDrivers は全ドライバーを返す。searchが空でない場合は
// 名・姓・メールアドレスの部分一致（大文字小文字を区別しない）で絞り込む。
func (s *AdminService) ListDrivers(ctx context.Context, search string) ([]*model.DriverProfile, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ドライバー一覧の取得に失敗しました: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return profiles, nil
	}

	filtered := make([]*model.DriverProfile, 0, len(profiles))
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.FirstName), q) ||
			strings.Contains(strings.ToLower(p.LastName), q) ||
			strings.Contains(strings.ToLower(p.Email), q) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}
