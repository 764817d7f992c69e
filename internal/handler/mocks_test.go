package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/driverdash/internal/authstate"
	"github.com/hitoshi/driverdash/internal/driver"
	"github.com/hitoshi/driverdash/internal/guard"
	"github.com/hitoshi/driverdash/internal/identity"
	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/visitor"
)

// --- 認証バックエンドのモック ---

// mockAuthenticator はidentity.Authenticatorのインメモリ実装。
// a@b.com / correct でログインでき、confirm-ok の確認トークンを受け付ける。
type mockAuthenticator struct {
	mu              sync.Mutex
	sessions        map[string]*model.Session
	signUpSession   bool
	signUpErr       error
	signOutErr      error
	updatedPassword string
	signedOut       []string
}

func newMockAuthenticator() *mockAuthenticator {
	return &mockAuthenticator{sessions: make(map[string]*model.Session)}
}

func (m *mockAuthenticator) issue(userID, email string) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := "tok-" + userID
	s := &model.Session{
		ID:          "sess-" + userID,
		UserID:      userID,
		Email:       email,
		AccessToken: token,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	m.sessions[token] = s
	return s
}

func (m *mockAuthenticator) SignUp(_ context.Context, email, password string, _ identity.SignUpOptions) (*identity.SignUpResult, error) {
	if m.signUpErr != nil {
		return nil, m.signUpErr
	}
	result := &identity.SignUpResult{User: &model.User{ID: "user-new", Email: email}}
	if m.signUpSession {
		result.Session = m.issue("user-new", email)
	}
	return result, nil
}

func (m *mockAuthenticator) SignIn(_ context.Context, email, password string) (*model.Session, error) {
	if email == "a@b.com" && password == "correct" {
		return m.issue("user-a", email), nil
	}
	return nil, identity.ErrInvalidCredentials
}

func (m *mockAuthenticator) ConfirmEmail(_ context.Context, token string) (*model.Session, error) {
	if token == "confirm-ok" {
		return m.issue("user-c", "c@b.com"), nil
	}
	return nil, identity.ErrInvalidConfirmation
}

func (m *mockAuthenticator) VerifyAccessToken(_ context.Context, token string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[token]; ok {
		return s, nil
	}
	return nil, identity.ErrInvalidToken
}

func (m *mockAuthenticator) RefreshSession(_ context.Context, s *model.Session) (*model.Session, error) {
	return s, nil
}

func (m *mockAuthenticator) UpdatePassword(_ context.Context, _ string, password string) error {
	if len(password) < 6 {
		return identity.ErrWeakPassword
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatedPassword = password
	return nil
}

func (m *mockAuthenticator) SignOut(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signedOut = append(m.signedOut, token)
	delete(m.sessions, token)
	return m.signOutErr
}

type staticAdmin map[string]bool

func (a staticAdmin) IsAdmin(_ context.Context, userID string) bool { return a[userID] }

// mockSessionPersister はPersistSessionの呼び出しを記録する。
type mockSessionPersister struct {
	calls int
}

func (m *mockSessionPersister) PersistSession(w http.ResponseWriter, r *http.Request, v *visitor.Visitor) {
	m.calls++
	http.SetCookie(w, &http.Cookie{Name: visitor.AccessTokenCookieName, Value: v.Client.AccessToken(), Path: "/"})
}

// --- ドライバーサービスのモック ---

type mockProfileService struct {
	getOrCreateFn func(ctx context.Context, userID, email string) (*model.DriverProfile, error)
	updateFn      func(ctx context.Context, userID, email string, in driver.ProfileInput, carPhoto *driver.Upload) (*model.DriverProfile, error)
}

func (m *mockProfileService) GetOrCreate(ctx context.Context, userID, email string) (*model.DriverProfile, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, userID, email)
	}
	return &model.DriverProfile{ID: "p-" + userID, UserID: userID, Email: email}, nil
}

func (m *mockProfileService) Update(ctx context.Context, userID, email string, in driver.ProfileInput, carPhoto *driver.Upload) (*model.DriverProfile, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, email, in, carPhoto)
	}
	return &model.DriverProfile{UserID: userID}, nil
}

type mockTripService struct {
	logFn  func(ctx context.Context, driverID string, in driver.TripInput, images driver.TripImages) (*model.Trip, error)
	listFn func(ctx context.Context, driverID string) ([]*model.Trip, error)
}

func (m *mockTripService) Log(ctx context.Context, driverID string, in driver.TripInput, images driver.TripImages) (*model.Trip, error) {
	if m.logFn != nil {
		return m.logFn(ctx, driverID, in, images)
	}
	return &model.Trip{DriverID: driverID}, nil
}

func (m *mockTripService) List(ctx context.Context, driverID string) ([]*model.Trip, error) {
	if m.listFn != nil {
		return m.listFn(ctx, driverID)
	}
	return nil, nil
}

type mockVerificationService struct {
	submitFn       func(ctx context.Context, driverID string, image *driver.Upload) (*model.PosterVerification, error)
	listPendingFn  func(ctx context.Context) ([]*model.PosterVerification, error)
	listByDriverFn func(ctx context.Context, driverID string) ([]*model.PosterVerification, error)
	reviewFn       func(ctx context.Context, id string, status model.VerificationStatus, reviewerID, notes string) (*model.PosterVerification, error)
}

func (m *mockVerificationService) Submit(ctx context.Context, driverID string, image *driver.Upload) (*model.PosterVerification, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, driverID, image)
	}
	return &model.PosterVerification{DriverID: driverID, Status: model.VerificationPending}, nil
}

func (m *mockVerificationService) ListPending(ctx context.Context) ([]*model.PosterVerification, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx)
	}
	return nil, nil
}

func (m *mockVerificationService) ListByDriver(ctx context.Context, driverID string) ([]*model.PosterVerification, error) {
	if m.listByDriverFn != nil {
		return m.listByDriverFn(ctx, driverID)
	}
	return nil, nil
}

func (m *mockVerificationService) Review(ctx context.Context, id string, status model.VerificationStatus, reviewerID, notes string) (*model.PosterVerification, error) {
	if m.reviewFn != nil {
		return m.reviewFn(ctx, id, status, reviewerID, notes)
	}
	return &model.PosterVerification{ID: id, Status: status}, nil
}

type mockAdminService struct {
	listDriversFn func(ctx context.Context, search string) ([]*model.DriverProfile, error)
}

func (m *mockAdminService) ListDrivers(ctx context.Context, search string) ([]*model.DriverProfile, error) {
	if m.listDriversFn != nil {
		return m.listDriversFn(ctx, search)
	}
	return nil, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error { return m.err }

// --- compile-time interface checks ---
var _ identity.Authenticator = (*mockAuthenticator)(nil)
var _ authstate.AdminChecker = staticAdmin(nil)
var _ SessionPersister = (*mockSessionPersister)(nil)
var _ ProfileServiceInterface = (*mockProfileService)(nil)
var _ TripServiceInterface = (*mockTripService)(nil)
var _ VerificationServiceInterface = (*mockVerificationService)(nil)
var _ AdminServiceInterface = (*mockAdminService)(nil)
var _ HealthChecker = (*mockHealthChecker)(nil)

// --- ヘルパー ---

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	rd, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return rd
}

// newTestVisitor は訪問者を生成し、セッション状態が確定するまで待つ。
func newTestVisitor(t *testing.T, auth identity.Authenticator, admin authstate.AdminChecker, token string) *visitor.Visitor {
	t.Helper()
	v := &visitor.Visitor{ID: "visitor-1", Client: identity.NewClient(auth, token)}
	v.Controller = authstate.New(v.Client, admin, authstate.WithNotifier(v))
	v.Controller.Start(context.Background())
	t.Cleanup(v.Controller.Close)
	settle(t, v)
	return v
}

func settle(t *testing.T, v *visitor.Visitor) authstate.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st := v.Controller.AwaitSettled(ctx)
	if st.IsLoading {
		t.Fatal("セッション状態が確定しない")
	}
	return st
}

// withVisitor はリクエストに訪問者を格納する。
func withVisitor(req *http.Request, v *visitor.Visitor) *http.Request {
	return req.WithContext(visitor.ContextWithVisitor(req.Context(), v))
}

// withIdentity はガードを通過した状態をリクエストに格納する。
func withIdentity(req *http.Request, userID, email string, isAdmin bool) *http.Request {
	st := authstate.State{Identity: &authstate.Identity{ID: userID, Email: email}, IsAdmin: isAdmin}
	return req.WithContext(guard.ContextWithState(req.Context(), st))
}

// withChiURLParams はchiのURLパラメータをリクエストに設定する。
func withChiURLParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// testFile はmultipartフォームに添付するファイル。
type testFile struct {
	field       string
	name        string
	contentType string
	body        []byte
}

func postMultipart(t *testing.T, target string, values map[string]string, files ...testFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(f.body)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func readUpload(t *testing.T, up *driver.Upload) string {
	t.Helper()
	if up == nil {
		return ""
	}
	b, err := io.ReadAll(up.Body)
	if err != nil {
		t.Fatalf("failed to read upload: %v", err)
	}
	return string(b)
}

func hasNotice(notices []authstate.Notice, title string) (authstate.Notice, bool) {
	for _, n := range notices {
		if n.Title == title {
			return n, true
		}
	}
	return authstate.Notice{}, false
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusSeeOther, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("Location = %q, want %q", got, location)
	}
}
