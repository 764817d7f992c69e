package authstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/driverdash/internal/identity"
	"github.com/hitoshi/driverdash/internal/model"
)

// --- モック定義 ---

type fakeBackend struct {
	mu          sync.Mutex
	session     *model.Session
	currentErr  error
	currentGate chan struct{}
	signInFn    func(email, password string) (*model.Session, error)
	signUpFn    func(email, password string, opts identity.SignUpOptions) (*identity.SignUpResult, error)
	signOutErr  error
	subs        map[int]func(model.AuthEvent)
	nextSub     int
	unsubCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{subs: make(map[int]func(model.AuthEvent))}
}

func (b *fakeBackend) CurrentSession(ctx context.Context) (*model.Session, error) {
	b.mu.Lock()
	gate := b.currentGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session, b.currentErr
}

func (b *fakeBackend) SignInWithPassword(_ context.Context, email, password string) (*model.Session, error) {
	session, err := b.signInFn(email, password)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
	b.emit(model.AuthEvent{Kind: model.AuthEventSignedIn, Session: session})
	return session, nil
}

func (b *fakeBackend) SignUp(_ context.Context, email, password string, opts identity.SignUpOptions) (*identity.SignUpResult, error) {
	result, err := b.signUpFn(email, password, opts)
	if err != nil {
		return nil, err
	}
	if result.Session != nil {
		b.mu.Lock()
		b.session = result.Session
		b.mu.Unlock()
		b.emit(model.AuthEvent{Kind: model.AuthEventSignedIn, Session: result.Session})
	}
	return result, nil
}

func (b *fakeBackend) SignOut(_ context.Context) error {
	b.mu.Lock()
	b.session = nil
	err := b.signOutErr
	b.mu.Unlock()
	b.emit(model.AuthEvent{Kind: model.AuthEventSignedOut})
	return err
}

func (b *fakeBackend) Subscribe(fn func(model.AuthEvent)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.unsubCalls++
		b.mu.Unlock()
	}
}

func (b *fakeBackend) emit(e model.AuthEvent) {
	b.mu.Lock()
	fns := make([]func(model.AuthEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (b *fakeBackend) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// fakeAdmin は管理者判定のモック。blockingがtrueの場合、
// 判定はreleaseで結果を受け取るまで待機する。
type fakeAdmin struct {
	mu       sync.Mutex
	admins   map[string]bool
	blocking bool
	pending  chan pendingLookup
}

type pendingLookup struct {
	userID  string
	release chan bool
}

func newFakeAdmin(admins ...string) *fakeAdmin {
	a := &fakeAdmin{admins: make(map[string]bool), pending: make(chan pendingLookup, 16)}
	for _, id := range admins {
		a.admins[id] = true
	}
	return a
}

func (a *fakeAdmin) IsAdmin(ctx context.Context, userID string) bool {
	a.mu.Lock()
	blocking := a.blocking
	result := a.admins[userID]
	a.mu.Unlock()
	if !blocking {
		return result
	}
	p := pendingLookup{userID: userID, release: make(chan bool, 1)}
	a.pending <- p
	select {
	case r := <-p.release:
		return r
	case <-ctx.Done():
		return false
	}
}

func (a *fakeAdmin) setBlocking(v bool) {
	a.mu.Lock()
	a.blocking = v
	a.mu.Unlock()
}

func (a *fakeAdmin) nextPending(t *testing.T) pendingLookup {
	t.Helper()
	select {
	case p := <-a.pending:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for admin lookup")
		return pendingLookup{}
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

func (n *recordingNotifier) last(t *testing.T) Notice {
	t.Helper()
	all := n.all()
	if len(all) == 0 {
		t.Fatal("no notice recorded")
	}
	return all[len(all)-1]
}

type countingRecorder struct {
	mu        sync.Mutex
	applied   int
	discarded int
	logins    map[bool]int
}

func (r *countingRecorder) RecordLogin(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logins == nil {
		r.logins = make(map[bool]int)
	}
	r.logins[success]++
}
func (r *countingRecorder) RecordSignup(bool) {}
func (r *countingRecorder) RecordLogout(bool) {}
func (r *countingRecorder) RecordReconcile(applied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if applied {
		r.applied++
	} else {
		r.discarded++
	}
}

// stateLog は公開された状態を記録する。
type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

// --- compile-time interface checks ---
var _ Backend = (*fakeBackend)(nil)
var _ AdminChecker = (*fakeAdmin)(nil)
var _ Notifier = (*recordingNotifier)(nil)
var _ Recorder = (*countingRecorder)(nil)

func newSession(userID, email string) *model.Session {
	return &model.Session{ID: "sess-" + userID, UserID: userID, Email: email, ExpiresAt: time.Now().Add(time.Hour)}
}

// waitFor は条件が満たされるまで待機する。
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func settle(t *testing.T, c *Controller) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st := c.AwaitSettled(ctx)
	if st.IsLoading {
		t.Fatalf("controller did not settle: %+v", st)
	}
	return st
}
