package identity

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/driverdash/internal/model"
)

// Authenticator はClientが利用するサーバー側の認証操作。
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	ConfirmEmail(ctx context.Context, token string) (*model.Session, error)
	VerifyAccessToken(ctx context.Context, token string) (*model.Session, error)
	RefreshSession(ctx context.Context, session *model.Session) (*model.Session, error)
	UpdatePassword(ctx context.Context, userID, password string) error
	SignOut(ctx context.Context, accessToken string) error
}

const (
	defaultRefreshWindow  = 10 * time.Minute
	initialSessionTimeout = 10 * time.Second
	maxRetiredTokens      = 8
)

// ClientOption はClientのオプション。
type ClientOption func(*Client)

// WithRefreshWindow は有効期限がこの時間内に迫ったセッションを
// CurrentSessionで自動更新するよう設定する。
func WithRefreshWindow(d time.Duration) ClientOption {
	return func(c *Client) { c.refreshWindow = d }
}

// WithClientClock はテスト用に現在時刻の取得関数を差し替える。
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// Client は訪問者1人分のセッションを保持する認証クライアント。
// セッションの変化をSubscribeした購読者へAuthEventとして通知する。
type Client struct {
	auth          Authenticator
	refreshWindow time.Duration
	now           func() time.Time

	mu          sync.Mutex
	accessToken string
	retired     []string
	subscribers map[int]func(model.AuthEvent)
	nextSubID   int
}

// NewClient はClientを生成する。accessTokenは既存セッションのトークン（空可）。
func NewClient(auth Authenticator, accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		auth:          auth,
		refreshWindow: defaultRefreshWindow,
		now:           time.Now,
		accessToken:   accessToken,
		subscribers:   make(map[int]func(model.AuthEvent)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccessToken は現在保持しているアクセストークンを返す。
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Holds はtokenがこのクライアントの現在のトークン、または更新・破棄で
// 置き換えた直近のトークンかどうかを返す。空文字列は現在のトークンが空の場合のみ一致する。
func (c *Client) Holds(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == c.accessToken {
		return true
	}
	if token == "" {
		return false
	}
	for _, t := range c.retired {
		if t == token {
			return true
		}
	}
	return false
}

// replaceTokenLocked は現在のトークンを置き換え、古いトークンを記録する。c.muを保持して呼ぶこと。
func (c *Client) replaceTokenLocked(token string) {
	if c.accessToken != "" && c.accessToken != token {
		c.retired = append(c.retired, c.accessToken)
		if len(c.retired) > maxRetiredTokens {
			c.retired = c.retired[len(c.retired)-maxRetiredTokens:]
		}
	}
	c.accessToken = token
}

// CurrentSession は保持しているトークンのセッションを返す。
// トークンが無効になっていた場合は破棄してnilを返す。
// 有効期限が近い場合はセッションを更新しTOKEN_REFRESHEDを通知する。
func (c *Client) CurrentSession(ctx context.Context) (*model.Session, error) {
	token := c.AccessToken()
	if token == "" {
		return nil, nil
	}

	session, err := c.auth.VerifyAccessToken(ctx, token)
	if IsSessionGone(err) {
		c.clearTokenIf(token)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if session.ExpiresAt.Sub(c.now()) > c.refreshWindow {
		return session, nil
	}

	refreshed, err := c.auth.RefreshSession(ctx, session)
	if err != nil {
		slog.Warn("session refresh failed", slog.String("error", err.Error()))
		return session, nil
	}

	c.mu.Lock()
	if c.accessToken != token {
		// 更新中に別の操作でセッションが変わった
		c.mu.Unlock()
		return refreshed, nil
	}
	c.replaceTokenLocked(refreshed.AccessToken)
	c.mu.Unlock()

	c.emit(model.AuthEvent{Kind: model.AuthEventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

// SignInWithPassword はサインインしSIGNED_INを通知する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.setSession(session, model.AuthEventSignedIn)
	return session, nil
}

// SignUp はアカウントを作成する。セッションが発行された場合はSIGNED_INを通知する。
func (c *Client) SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*SignUpResult, error) {
	result, err := c.auth.SignUp(ctx, email, password, opts)
	if err != nil {
		return nil, err
	}
	if result.Session != nil {
		c.setSession(result.Session, model.AuthEventSignedIn)
	}
	return result, nil
}

// ConfirmEmail は確認リンクのトークンでサインインしSIGNED_INを通知する。
func (c *Client) ConfirmEmail(ctx context.Context, token string) (*model.Session, error) {
	session, err := c.auth.ConfirmEmail(ctx, token)
	if err != nil {
		return nil, err
	}
	c.setSession(session, model.AuthEventSignedIn)
	return session, nil
}

// UpdatePassword は現在のユーザーのパスワードを変更しUSER_UPDATEDを通知する。
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	session, err := c.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionMissing
	}
	if err := c.auth.UpdatePassword(ctx, session.UserID, password); err != nil {
		return err
	}
	c.emit(model.AuthEvent{Kind: model.AuthEventUserUpdated, Session: session})
	return nil
}

// SignOut はローカルのトークンを破棄してからサーバー側のセッションを削除する。
// サーバー側の削除に失敗してもSIGNED_OUTは通知する。
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.accessToken
	c.replaceTokenLocked("")
	c.mu.Unlock()

	var err error
	if token != "" {
		err = c.auth.SignOut(ctx, token)
	}
	c.emit(model.AuthEvent{Kind: model.AuthEventSignedOut})
	return err
}

// Subscribe はイベント購読者を登録し、登録解除関数を返す。
// 登録直後にINITIAL_SESSIONを非同期で通知する。
func (c *Client) Subscribe(fn func(model.AuthEvent)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	go c.sendInitialSession(id)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) sendInitialSession(id int) {
	ctx, cancel := context.WithTimeout(context.Background(), initialSessionTimeout)
	defer cancel()

	want := c.AccessToken()
	session, err := c.CurrentSession(ctx)
	switch {
	case err != nil:
		slog.Warn("failed to resolve initial session", slog.String("error", err.Error()))
		session = nil
	case session != nil:
		want = session.AccessToken
	default:
		want = ""
	}

	c.mu.Lock()
	fn, ok := c.subscribers[id]
	// 解決中にサインイン・サインアウトが起きた場合は古い結果を通知しない
	stale := c.accessToken != want
	c.mu.Unlock()
	if ok && !stale {
		fn(model.AuthEvent{Kind: model.AuthEventInitialSession, Session: session})
	}
}

func (c *Client) setSession(session *model.Session, kind model.AuthEventKind) {
	c.mu.Lock()
	c.replaceTokenLocked(session.AccessToken)
	c.mu.Unlock()
	c.emit(model.AuthEvent{Kind: kind, Session: session})
}

func (c *Client) clearTokenIf(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == token {
		c.replaceTokenLocked("")
	}
}

// emit は購読者へ登録順にイベントを通知する。ロックは保持しない。
func (c *Client) emit(event model.AuthEvent) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(model.AuthEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subscribers[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}
