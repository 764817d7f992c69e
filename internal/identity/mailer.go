package identity

import (
	"context"
	"log/slog"
)

// Mailer は確認メールの送信先を抽象化する。
type Mailer interface {
	SendConfirmation(ctx context.Context, email, link string) error
}

// LogMailer は確認リンクをログに出力するだけのMailer。
// SMTP連携を持たない開発環境向け。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendConfirmation は確認リンクをINFOレベルで記録する。
func (m *LogMailer) SendConfirmation(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "confirmation email",
		slog.String("email", email),
		slog.String("link", link),
	)
	return nil
}

var _ Mailer = (*LogMailer)(nil)
