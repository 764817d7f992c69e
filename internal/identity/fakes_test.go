package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/repository"
)

// --- インメモリのリポジトリ ---

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*model.User)}
}

func (r *memoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memoryUserRepo) MarkEmailConfirmed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	if u.EmailConfirmedAt == nil {
		u.EmailConfirmedAt = &at
	}
	return nil
}

func (r *memoryUserRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	u.PasswordHash = hash
	return nil
}

type memorySessionRepo struct {
	mu       sync.Mutex
	users    *memoryUserRepo
	sessions map[string]*model.Session
	now      func() time.Time
}

func newMemorySessionRepo(users *memoryUserRepo, now func() time.Time) *memorySessionRepo {
	return &memorySessionRepo{users: users, sessions: make(map[string]*model.Session), now: now}
}

func (r *memorySessionRepo) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.AccessToken = ""
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memorySessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	var cp model.Session
	if ok {
		cp = *s
	}
	r.mu.Unlock()
	if !ok || !cp.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	u, _ := r.users.FindByID(ctx, cp.UserID)
	if u != nil {
		cp.Email = u.Email
	}
	return &cp, nil
}

func (r *memorySessionRepo) Extend(_ context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	s.ExpiresAt = expiresAt
	return nil
}

func (r *memorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// recordingMailer は送信された確認リンクを記録する。
type recordingMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *recordingMailer) SendConfirmation(_ context.Context, _ string, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

func (m *recordingMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		return ""
	}
	return m.links[len(m.links)-1]
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*memoryUserRepo)(nil)
var _ repository.SessionRepository = (*memorySessionRepo)(nil)
var _ Mailer = (*recordingMailer)(nil)
