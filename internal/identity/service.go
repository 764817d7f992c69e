// Package identity はメールアドレスとパスワードによる認証バックエンドを提供する。
// Serviceがアカウントとセッションを永続化し、Clientが訪問者ごとの
// セッション保持とイベント通知を担う。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// SignUpOptions はサインアップ時の追加指定。
type SignUpOptions struct {
	// RedirectTo は確認リンクを開いた後の遷移先パス。
	RedirectTo string
}

// SignUpResult はサインアップ結果。
// メールアドレス確認が必要な場合、Sessionはnilとなる。
type SignUpResult struct {
	User    *model.User
	Session *model.Session
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   time.Duration // セッション有効期間
	AutoConfirm     bool          // trueの場合サインアップ直後に確認済みとする
	BcryptCost      int           // 0の場合bcrypt.DefaultCost
	ConfirmTokenTTL time.Duration // 確認リンクの有効期間
	BaseURL         string        // 確認リンクの生成に使う公開URL
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *TokenIssuer
	mailer   Mailer
	validate *validator.Validate
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *TokenIssuer,
	mailer Mailer,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.ConfirmTokenTTL == 0 {
		config.ConfirmTokenTTL = 24 * time.Hour
	}
	if config.SessionMaxAge == 0 {
		config.SessionMaxAge = 24 * time.Hour
	}
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		mailer:   mailer,
		validate: validator.New(),
		config:   config,
		now:      time.Now,
	}
}

// SignUp はアカウントを作成する。
// AutoConfirmが有効な場合はセッションを発行し、そうでない場合は確認リンクを送信する。
func (s *Service) SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*SignUpResult, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.config.AutoConfirm {
		user.EmailConfirmedAt = &now
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.Bool("auto_confirm", s.config.AutoConfirm),
	)

	if s.config.AutoConfirm {
		session, err := s.issueSession(ctx, user)
		if err != nil {
			return nil, err
		}
		return &SignUpResult{User: user, Session: session}, nil
	}

	token, err := s.tokens.IssueConfirmation(user.ID, user.Email, now, s.config.ConfirmTokenTTL)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.SendConfirmation(ctx, user.Email, s.confirmationLink(token, opts.RedirectTo)); err != nil {
		return nil, fmt.Errorf("failed to send confirmation: %w", err)
	}
	return &SignUpResult{User: user}, nil
}

// SignIn はメールアドレスとパスワードを検証してセッションを発行する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsConfirmed() {
		return nil, ErrEmailNotConfirmed
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	slog.Info("user signed in", slog.String("user_id", user.ID))
	return session, nil
}

// ConfirmEmail は確認トークンを検証し、アカウントを確認済みにしてセッションを発行する。
func (s *Service) ConfirmEmail(ctx context.Context, token string) (*model.Session, error) {
	claims, err := s.tokens.ParseConfirmation(token)
	if err != nil {
		return nil, ErrInvalidConfirmation
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !strings.EqualFold(user.Email, claims.Email) {
		return nil, ErrInvalidConfirmation
	}

	now := s.now()
	if err := s.users.MarkEmailConfirmed(ctx, user.ID, now); err != nil {
		return nil, err
	}
	if user.EmailConfirmedAt == nil {
		user.EmailConfirmedAt = &now
	}

	slog.Info("email confirmed", slog.String("user_id", user.ID))
	return s.issueSession(ctx, user)
}

// VerifyAccessToken はアクセストークンを検証し、対応するセッションを返す。
func (s *Service) VerifyAccessToken(ctx context.Context, token string) (*model.Session, error) {
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, ErrSessionNotFound
	}

	session.AccessToken = token
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(session.ExpiresAt) {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// RefreshSession はセッションの有効期限を延長し、新しいアクセストークンを発行する。
func (s *Service) RefreshSession(ctx context.Context, session *model.Session) (*model.Session, error) {
	now := s.now()
	expiresAt := now.Add(s.config.SessionMaxAge)
	if err := s.sessions.Extend(ctx, session.ID, expiresAt); err != nil {
		return nil, err
	}

	token, err := s.tokens.IssueAccess(session.UserID, session.Email, session.ID, now, expiresAt)
	if err != nil {
		return nil, err
	}

	refreshed := *session
	refreshed.AccessToken = token
	refreshed.ExpiresAt = expiresAt
	return &refreshed, nil
}

// UpdatePassword はパスワードを変更する。
func (s *Service) UpdatePassword(ctx context.Context, userID, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return err
	}
	slog.Info("password updated", slog.String("user_id", userID))
	return nil
}

// SignOut はアクセストークンが指すセッションを破棄する。
// 期限切れのトークンでもセッション行は削除する。
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.ParseAccessIgnoringExpiry(accessToken)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.SessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteByID(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user signed out", slog.String("session_id", claims.SessionID))
	return nil
}

// issueSession はセッションを作成し、アクセストークンを付与して返す。
func (s *Service) issueSession(ctx context.Context, user *model.User) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, err := s.tokens.IssueAccess(user.ID, user.Email, session.ID, now, session.ExpiresAt)
	if err != nil {
		return nil, err
	}
	session.AccessToken = token
	return session, nil
}

func (s *Service) confirmationLink(token, redirectTo string) string {
	q := url.Values{}
	q.Set("token", token)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return strings.TrimRight(s.config.BaseURL, "/") + "/auth/confirm?" + q.Encode()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Authenticator = (*Service)(nil)
