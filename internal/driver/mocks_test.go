package driver

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/repository"
	"github.com/hitoshi/driverdash/internal/security"
	"github.com/hitoshi/driverdash/internal/storage"
)

// --- モック ---

type mockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.DriverProfile
	findErr  error
}

func newMockProfileRepo(profiles ...*model.DriverProfile) *mockProfileRepo {
	m := &mockProfileRepo{profiles: make(map[string]*model.DriverProfile)}
	for _, p := range profiles {
		m.profiles[p.UserID] = p
	}
	return m
}

func (m *mockProfileRepo) FindByUserID(_ context.Context, userID string) (*model.DriverProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) FindAdminFlag(_ context.Context, userID string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return false, false, nil
	}
	return p.IsAdmin, true, nil
}

func (m *mockProfileRepo) Create(_ context.Context, p *model.DriverProfile) (*model.DriverProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[p.UserID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *p
	m.profiles[p.UserID] = &cp
	out := cp
	return &out, nil
}

func (m *mockProfileRepo) Update(_ context.Context, p *model.DriverProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.profiles[p.UserID]
	if !ok {
		return errors.New("not found")
	}
	cp := *p
	cp.IsAdmin = existing.IsAdmin
	cp.IsVerified = existing.IsVerified
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *mockProfileRepo) List(context.Context) ([]*model.DriverProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.DriverProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockProfileRepo) CountByEmails(_ context.Context, emails []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.profiles {
		for _, e := range emails {
			if strings.EqualFold(p.Email, e) {
				n++
			}
		}
	}
	return n, nil
}

type mockTripRepo struct {
	trips     []*model.Trip
	createErr error
}

func (m *mockTripRepo) Create(_ context.Context, t *model.Trip) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.trips = append(m.trips, t)
	return nil
}

func (m *mockTripRepo) ListByDriverID(_ context.Context, driverID string) ([]*model.Trip, error) {
	var out []*model.Trip
	for i := len(m.trips) - 1; i >= 0; i-- {
		if m.trips[i].DriverID == driverID {
			out = append(out, m.trips[i])
		}
	}
	return out, nil
}

type mockVerificationRepo struct {
	items map[string]*model.PosterVerification
}

func newMockVerificationRepo() *mockVerificationRepo {
	return &mockVerificationRepo{items: make(map[string]*model.PosterVerification)}
}

func (m *mockVerificationRepo) FindByID(_ context.Context, id string) (*model.PosterVerification, error) {
	v, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *mockVerificationRepo) Create(_ context.Context, v *model.PosterVerification) error {
	cp := *v
	m.items[v.ID] = &cp
	return nil
}

func (m *mockVerificationRepo) ListByStatus(_ context.Context, status model.VerificationStatus) ([]*model.PosterVerification, error) {
	var out []*model.PosterVerification
	for _, v := range m.items {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockVerificationRepo) ListByDriverID(_ context.Context, driverID string) ([]*model.PosterVerification, error) {
	var out []*model.PosterVerification
	for _, v := range m.items {
		if v.DriverID == driverID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockVerificationRepo) UpdateReview(_ context.Context, v *model.PosterVerification) (bool, error) {
	existing, ok := m.items[v.ID]
	if !ok || existing.Status != model.VerificationPending {
		return false, nil
	}
	cp := *v
	m.items[v.ID] = &cp
	return true, nil
}

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return m.users[strings.ToLower(email)], nil
}

func (m *mockUserRepo) Create(_ context.Context, u *model.User) error {
	m.users[strings.ToLower(u.Email)] = u
	return nil
}

func (m *mockUserRepo) MarkEmailConfirmed(context.Context, string, time.Time) error { return nil }

func (m *mockUserRepo) UpdatePasswordHash(context.Context, string, string) error { return nil }

// memoryStore はメモリ上のstorage.Store。
type memoryStore struct {
	objects   map[string]string
	uploadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string]string)}
}

func (s *memoryStore) Upload(_ context.Context, bucket, objectPath string, body io.Reader, _ storage.UploadOptions) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	key := bucket + "/" + objectPath
	s.objects[key] = string(b)
	return key, nil
}

func (s *memoryStore) PublicURL(bucket, objectPath string) string {
	return "http://test/uploads/" + bucket + "/" + objectPath
}

// --- compile-time interface checks ---
var _ repository.ProfileRepository = (*mockProfileRepo)(nil)
var _ repository.TripRepository = (*mockTripRepo)(nil)
var _ repository.VerificationRepository = (*mockVerificationRepo)(nil)
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ storage.Store = (*memoryStore)(nil)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func upload(name, body string) *Upload {
	return &Upload{Name: name, Body: strings.NewReader(body)}
}

func sanitizer() security.TextSanitizer {
	return security.NewTextSanitizer()
}
