package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/hitoshi/driverdash/internal/identity"
	"github.com/hitoshi/driverdash/internal/model"
)

// 通知文言
const (
	noticeLoginFailed       = "Login failed"
	noticeLoginSucceeded    = "Login successful"
	noticeWelcomeBack       = "Welcome back!"
	noticeSignupFailed      = "Signup failed"
	noticeSignupSucceeded   = "Signup successful"
	noticeCheckEmail        = "Please check your email to verify your account"
	noticeLogoutSucceeded   = "Logout successful"
	noticeLoggedOut         = "You have been logged out"
	noticeLogoutError       = "Logout error"
	noticeUnexpectedFailure = "An unexpected error occurred"
)

// Option はControllerのオプション。
type Option func(*Controller)

// WithNotifier は通知の送信先を設定する。
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithSignupRedirect は確認リンクを開いた後の遷移先を設定する。
func WithSignupRedirect(path string) Option {
	return func(c *Controller) { c.signupRedirect = path }
}

// Controller は訪問者1人分のセッション状態を保持する。
//
// 状態はmuで保護する。世代番号はログアウトと照合開始のたびに進み、
// 管理者判定の結果は照合開始時の世代が現在も有効な場合のみ適用する。
// 購読者への配信は公開順に直列化される。
type Controller struct {
	backend        Backend
	admin          AdminChecker
	notifier       Notifier
	recorder       Recorder
	logger         *slog.Logger
	signupRedirect string

	mu          sync.Mutex
	state       State
	generation  uint64
	lookupGen   uint64
	started     bool
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	settled       chan struct{}
	settledClosed bool

	listeners    map[int]func(State)
	nextListener int
	queue        []State
	draining     bool
}

// New はControllerを生成する。初期状態は{nil, false, true}。
func New(backend Backend, admin AdminChecker, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:        backend,
		admin:          admin,
		notifier:       nopNotifier{},
		recorder:       nopRecorder{},
		logger:         slog.Default(),
		signupRedirect: "/dashboard",
		state:          initialState(),
		ctx:            ctx,
		cancel:         cancel,
		settled:        make(chan struct{}),
		listeners:      make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start はバックエンドのイベント購読と現在のセッションの読み込みを開始する。
// 2回目以降の呼び出しは何もしない。
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(ctx)
	loadCtx, gen := c.ctx, c.generation
	c.mu.Unlock()

	unsubscribe := c.backend.Subscribe(c.handleEvent)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	go c.loadSession(loadCtx, gen)
}

// State は現在の状態のスナップショットを返す。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe は状態の購読者を登録し、登録解除関数を返す。
// 購読者は公開されたすべての状態を公開順に受け取る。
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// AwaitSettled はIsLoadingがfalseになるかctxが終了するまで待ち、その時点の状態を返す。
// 確定直後に別の照合が始まった場合は再び待機する。
func (c *Controller) AwaitSettled(ctx context.Context) State {
	for {
		c.mu.Lock()
		if !c.state.IsLoading || c.closed {
			st := c.state.clone()
			c.mu.Unlock()
			return st
		}
		settled := c.settled
		c.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return c.State()
		}
	}
}

// Login はメールアドレスとパスワードでログインする。
// 成功時のidentityはバックエンドのSIGNED_INイベント経由で反映される。
func (c *Controller) Login(ctx context.Context, email, password string) bool {
	c.setLoading(true)

	if _, err := c.backend.SignInWithPassword(ctx, email, password); err != nil {
		c.setLoading(false)
		c.notify(Notice{Title: noticeLoginFailed, Description: c.userMessage(err), Variant: VariantDestructive})
		c.recorder.RecordLogin(false)
		return false
	}

	c.notify(Notice{Title: noticeLoginSucceeded, Description: noticeWelcomeBack, Variant: VariantDefault})
	c.recorder.RecordLogin(true)
	return true
}

// Signup はアカウントを作成する。
// セッションが発行されなかった場合はイベントが届かないため、ここでIsLoadingを解除する。
func (c *Controller) Signup(ctx context.Context, email, password string) (*identity.SignUpResult, error) {
	c.setLoading(true)

	result, err := c.backend.SignUp(ctx, email, password, identity.SignUpOptions{RedirectTo: c.signupRedirect})
	if err != nil {
		c.setLoading(false)
		c.notify(Notice{Title: noticeSignupFailed, Description: c.userMessage(err), Variant: VariantDestructive})
		c.recorder.RecordSignup(false)
		return nil, err
	}

	c.notify(Notice{Title: noticeSignupSucceeded, Description: noticeCheckEmail, Variant: VariantDefault})
	if result.Session == nil {
		c.setLoading(false)
	}
	c.recorder.RecordSignup(true)
	return result, nil
}

// Logout はサインアウトする。バックエンドの結果に関わらずローカルの状態はログアウトになる。
func (c *Controller) Logout(ctx context.Context) {
	c.setLoading(true)

	err := c.backend.SignOut(ctx)
	c.resetToLoggedOut()

	if err != nil {
		c.logger.Warn("sign out failed", slog.String("error", err.Error()))
		c.notify(Notice{Title: noticeLogoutError, Description: c.userMessage(err), Variant: VariantDestructive})
		c.recorder.RecordLogout(true)
		return
	}
	c.notify(Notice{Title: noticeLogoutSucceeded, Description: noticeLoggedOut, Variant: VariantDefault})
	c.recorder.RecordLogout(false)
}

// Close はイベント購読を解除し、処理中の継続をすべて無効化する。
// 状態は初期値に戻り、購読者は破棄される。
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.state = initialState()
	c.listeners = make(map[int]func(State))
	c.queue = nil
	if !c.settledClosed {
		close(c.settled)
		c.settledClosed = true
	}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	cancel := c.cancel
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
}

// handleEvent はバックエンドのイベントを状態遷移に変換する。
func (c *Controller) handleEvent(e model.AuthEvent) {
	switch e.Kind {
	case model.AuthEventSignedIn, model.AuthEventUserUpdated:
		if e.Session != nil {
			c.reconcile(identityFromSession(e.Session))
		}
	case model.AuthEventSignedOut:
		c.resetToLoggedOut()
	case model.AuthEventInitialSession:
		if e.Session != nil {
			c.reconcile(identityFromSession(e.Session))
		} else {
			c.resetToLoggedOut()
		}
	default:
		if e.Session != nil {
			c.reconcile(identityFromSession(e.Session))
		} else {
			c.setLoading(false)
		}
	}
}

// loadSession は起動時に現在のセッションを読み込む。
// Start以降に別の遷移が起きた場合、結果は破棄する。
func (c *Controller) loadSession(ctx context.Context, gen uint64) {
	session, err := c.backend.CurrentSession(ctx)
	if err != nil {
		c.logger.Warn("failed to load session", slog.String("error", err.Error()))
		session = nil
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	if session != nil {
		lookupCtx, lookupGen, id := c.beginReconcileLocked(identityFromSession(session))
		c.mu.Unlock()
		c.flush()
		go c.resolveAdmin(lookupCtx, lookupGen, id)
		return
	}
	c.generation++
	c.commitLocked(loggedOutState())
	c.mu.Unlock()
	c.flush()
}

// reconcile はidentityを反映し、管理者判定を非同期で開始する。
// 同一ユーザーの場合は判定が終わるまで直前のIsAdminを維持する。
func (c *Controller) reconcile(id Identity) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ctx, gen, id := c.beginReconcileLocked(id)
	c.mu.Unlock()
	c.flush()

	go c.resolveAdmin(ctx, gen, id)
}

// beginReconcileLocked は照合の第1段階を反映する。c.muを保持して呼ぶこと。
func (c *Controller) beginReconcileLocked(id Identity) (context.Context, uint64, Identity) {
	isAdmin := false
	if prev := c.state.Identity; prev != nil && prev.ID == id.ID {
		isAdmin = c.state.IsAdmin
	}
	c.generation++
	c.lookupGen = c.generation
	c.commitLocked(State{Identity: &id, IsAdmin: isAdmin, IsLoading: true})
	return c.ctx, c.generation, id
}

func (c *Controller) resolveAdmin(ctx context.Context, gen uint64, id Identity) {
	isAdmin := c.admin.IsAdmin(ctx, id.ID)

	c.mu.Lock()
	current := c.state.Identity
	if c.closed || gen != c.generation || current == nil || current.ID != id.ID {
		c.mu.Unlock()
		c.recorder.RecordReconcile(false)
		return
	}
	c.lookupGen = 0
	c.commitLocked(State{Identity: current, IsAdmin: isAdmin, IsLoading: false})
	c.mu.Unlock()
	c.recorder.RecordReconcile(true)
	c.flush()
}

func (c *Controller) resetToLoggedOut() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.commitLocked(loggedOutState())
	c.mu.Unlock()
	c.flush()
}

// setLoading はIsLoadingを切り替える。
// 現在の世代の管理者判定が終わっていない間は解除せず、判定結果の反映に任せる。
func (c *Controller) setLoading(loading bool) {
	c.mu.Lock()
	if c.closed || (!loading && c.lookupPendingLocked()) {
		c.mu.Unlock()
		return
	}
	next := c.state
	next.IsLoading = loading
	c.commitLocked(next)
	c.mu.Unlock()
	c.flush()
}

// lookupPendingLocked は現在の世代の管理者判定が未完了かどうかを返す。c.muを保持して呼ぶこと。
func (c *Controller) lookupPendingLocked() bool {
	return c.lookupGen != 0 && c.lookupGen == c.generation
}

// commitLocked は状態を置き換えて配信待ちに積む。c.muを保持して呼ぶこと。
func (c *Controller) commitLocked(next State) {
	if next.Identity == nil {
		next.IsAdmin = false
	}
	c.state = next

	if next.IsLoading {
		if c.settledClosed {
			c.settled = make(chan struct{})
			c.settledClosed = false
		}
	} else if !c.settledClosed {
		close(c.settled)
		c.settledClosed = true
	}

	c.queue = append(c.queue, next.clone())
}

// flush は配信待ちの状態を購読者へ順に配信する。
// 配信中の別ゴルーチンがいる場合はそちらに任せる。
func (c *Controller) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		fns := c.listenerSnapshotLocked()
		c.mu.Unlock()
		for _, fn := range fns {
			fn(next.clone())
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

func (c *Controller) listenerSnapshotLocked() []func(State) {
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	return fns
}

func (c *Controller) notify(n Notice) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.notifier.Notify(n)
	}
}

// userMessage は利用者に表示するエラー文言を返す。
// バックエンド由来でないエラーの詳細はログにのみ残す。
func (c *Controller) userMessage(err error) string {
	var idErr *identity.Error
	if errors.As(err, &idErr) {
		return idErr.Message
	}
	c.logger.Error("auth backend error", slog.String("error", err.Error()))
	return noticeUnexpectedFailure
}
