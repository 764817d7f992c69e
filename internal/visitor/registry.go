package visitor

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/driverdash/internal/authstate"
	"github.com/hitoshi/driverdash/internal/identity"
)

const (
	// VisitorCookieName は訪問者IDを保持するCookieの名前。
	VisitorCookieName = "visitor_id"
	// AccessTokenCookieName はアクセストークンを保持するCookieの名前。
	AccessTokenCookieName = "access_token"

	visitorCookieMaxAge = 365 * 24 * 60 * 60
)

// Config はRegistryの設定。
type Config struct {
	IdleTimeout     time.Duration // 最終アクセスからこの時間を過ぎた訪問者を破棄する
	CleanupInterval time.Duration // アイドル訪問者の確認間隔
	SettleTimeout   time.Duration // ガード判定前に状態の確定を待つ最大時間
	SessionMaxAge   int           // アクセストークンCookieの有効期間（秒）
	SignupRedirect  string        // 確認リンクを開いた後の遷移先
	CookieSecure    bool
	CookieDomain    string
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		IdleTimeout:     30 * time.Minute,
		CleanupInterval: time.Minute,
		SettleTimeout:   2 * time.Second,
		SessionMaxAge:   86400,
		SignupRedirect:  "/dashboard",
	}
}

// Recorder はRegistryのメトリクス記録先。
// Controllerのメトリクスも同じ記録先へ送る。
type Recorder interface {
	authstate.Recorder
	SetActiveVisitors(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(bool)      {}
func (nopRecorder) RecordSignup(bool)     {}
func (nopRecorder) RecordLogout(bool)     {}
func (nopRecorder) RecordReconcile(bool)  {}
func (nopRecorder) SetActiveVisitors(int) {}

// Option はRegistryのオプション。
type Option func(*Registry)

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(reg *Registry) { reg.recorder = r }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(reg *Registry) { reg.logger = l }
}

// WithClientOptions は訪問者ごとに生成する認証クライアントのオプションを設定する。
func WithClientOptions(opts ...identity.ClientOption) Option {
	return func(reg *Registry) { reg.clientOpts = opts }
}

type entry struct {
	visitor    *Visitor
	lastAccess time.Time
}

// Registry は訪問者を管理する。
// 初めて見る訪問者にはCookieのアクセストークンでクライアントを生成し、
// Controllerを開始する。アイドルの訪問者はバックグラウンドで破棄する。
type Registry struct {
	auth       identity.Authenticator
	admin      authstate.AdminChecker
	config     Config
	recorder   Recorder
	logger     *slog.Logger
	clientOpts []identity.ClientOption
	now        func() time.Time

	mu       sync.Mutex
	visitors map[string]*entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry は新しいRegistryを生成する。
// バックグラウンドでアイドル訪問者のクリーンアップを開始する。
func NewRegistry(auth identity.Authenticator, admin authstate.AdminChecker, config Config, opts ...Option) *Registry {
	r := &Registry{
		auth:     auth,
		admin:    admin,
		config:   config,
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
		visitors: make(map[string]*entry),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.config.CleanupInterval <= 0 {
		r.config.CleanupInterval = time.Minute
	}

	go r.cleanupLoop()

	return r
}

// Stop はクリーンアップを停止し、すべての訪問者を破棄する。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		visitors := r.visitors
		r.visitors = make(map[string]*entry)
		r.mu.Unlock()

		for _, e := range visitors {
			e.visitor.Controller.Close()
		}
		r.recorder.SetActiveVisitors(0)
	})
}

// Count は管理中の訪問者数を返す。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Middleware はCookieから訪問者を解決してコンテキストに格納するミドルウェアを返す。
// 訪問者IDのCookieがない場合は新規に発行する。
func (r *Registry) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id := ""
			if c, err := req.Cookie(VisitorCookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					id = c.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, r.cookie(VisitorCookieName, id, visitorCookieMaxAge))
			}

			token := ""
			if c, err := req.Cookie(AccessTokenCookieName); err == nil {
				token = c.Value
			}

			v := r.getOrCreate(id, token)
			r.syncTokenCookie(w, token, v.Client.AccessToken())

			next.ServeHTTP(w, req.WithContext(ContextWithVisitor(req.Context(), v)))
		})
	}
}

// PersistSession は訪問者の現在のアクセストークンをCookieへ反映する。
// ログイン・ログアウトなどトークンが変わる操作の後に呼ぶ。
func (r *Registry) PersistSession(w http.ResponseWriter, req *http.Request, v *Visitor) {
	current := ""
	if c, err := req.Cookie(AccessTokenCookieName); err == nil {
		current = c.Value
	}
	r.syncTokenCookie(w, current, v.Client.AccessToken())
}

// SettledState はリクエストの訪問者の状態を、確定するまで最大SettleTimeout待って返す。
// 訪問者が解決できない場合は未ログインとして扱う。
func (r *Registry) SettledState(req *http.Request) authstate.State {
	v, ok := FromContext(req.Context())
	if !ok {
		return authstate.State{}
	}
	ctx, cancel := context.WithTimeout(req.Context(), r.config.SettleTimeout)
	defer cancel()
	return v.Controller.AwaitSettled(ctx)
}

// CurrentUserID はリクエストの訪問者のユーザーIDを待機せずに返す。
func (r *Registry) CurrentUserID(req *http.Request) string {
	v, ok := FromContext(req.Context())
	if !ok {
		return ""
	}
	if id := v.Controller.State().Identity; id != nil {
		return id.ID
	}
	return ""
}

// getOrCreate は訪問者IDに対応する訪問者を返す。
// Cookieのトークンが既存の訪問者の保持するトークンと一致しない場合は、
// 訪問者IDだけでセッションを引き継がないよう、そのトークンで作り直す。
func (r *Registry) getOrCreate(id, token string) *Visitor {
	r.mu.Lock()
	var replaced *Visitor
	if e, ok := r.visitors[id]; ok {
		if e.visitor.Client.Holds(token) {
			e.lastAccess = r.now()
			r.mu.Unlock()
			return e.visitor
		}
		replaced = e.visitor
		delete(r.visitors, id)
	}

	v := &Visitor{
		ID:     id,
		Client: identity.NewClient(r.auth, token, r.clientOpts...),
	}
	v.Controller = authstate.New(v.Client, r.admin,
		authstate.WithNotifier(v),
		authstate.WithRecorder(r.recorder),
		authstate.WithLogger(r.logger.With(slog.String("visitor_id", id))),
		authstate.WithSignupRedirect(r.config.SignupRedirect),
	)
	r.visitors[id] = &entry{visitor: v, lastAccess: r.now()}
	count := len(r.visitors)
	r.mu.Unlock()

	if replaced != nil {
		replaced.Controller.Close()
		r.logger.Info("visitor session replaced", slog.String("visitor_id", id))
	}
	v.Controller.Start(context.Background())
	r.recorder.SetActiveVisitors(count)
	r.logger.Debug("visitor created", slog.String("visitor_id", id))
	return v
}

func (r *Registry) syncTokenCookie(w http.ResponseWriter, current, token string) {
	if current == token {
		return
	}
	if token == "" {
		http.SetCookie(w, r.cookie(AccessTokenCookieName, "", -1))
		return
	}
	http.SetCookie(w, r.cookie(AccessTokenCookieName, token, r.config.SessionMaxAge))
}

func (r *Registry) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   r.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// cleanupLoop はバックグラウンドでアイドル訪問者を定期的に破棄する。
func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからIdleTimeoutを超え、ストリーム接続もない訪問者を破棄する。
func (r *Registry) cleanup() {
	now := r.now()

	var evicted []*Visitor
	r.mu.Lock()
	for id, e := range r.visitors {
		if e.visitor.streaming() {
			e.lastAccess = now
			continue
		}
		if now.Sub(e.lastAccess) > r.config.IdleTimeout {
			delete(r.visitors, id)
			evicted = append(evicted, e.visitor)
		}
	}
	count := len(r.visitors)
	r.mu.Unlock()

	for _, v := range evicted {
		v.Controller.Close()
	}
	if len(evicted) > 0 {
		r.logger.Debug("idle visitors evicted", slog.Int("count", len(evicted)))
	}
	r.recorder.SetActiveVisitors(count)
}
