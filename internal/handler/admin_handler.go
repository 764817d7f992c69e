package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/driverdash/internal/authstate"
	"github.com/hitoshi/driverdash/internal/model"
)

// 管理画面の通知文言
const (
	noticeApproved     = "Verification approved"
	noticeApprovedDesc = "The poster verification has been approved"
	noticeRejected     = "Verification rejected"
	noticeRejectedDesc = "The poster verification has been rejected"
	noticeReviewFailed = "Review failed"
)

// AdminServiceInterface は管理者向けのドライバー一覧サービスのインターフェース。
type AdminServiceInterface interface {
	ListDrivers(ctx context.Context, search string) ([]*model.DriverProfile, error)
}

// AdminHandler は管理画面のハンドラー。
// ルーティングでAdminゲートの内側に置くこと。
type AdminHandler struct {
	admin         AdminServiceInterface
	verifications VerificationServiceInterface
	renderer      *Renderer
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(admin AdminServiceInterface, verifications VerificationServiceInterface, renderer *Renderer) *AdminHandler {
	return &AdminHandler{
		admin:         admin,
		verifications: verifications,
		renderer:      renderer,
	}
}

type adminPageData struct {
	Pending []*model.PosterVerification
	Names   map[string]string // ドライバーID → 表示名
	Drivers []*model.DriverProfile
	Query   string
}

// reviewActions はURLの操作名と審査結果の対応。
var reviewActions = map[string]model.VerificationStatus{
	"approve": model.VerificationApproved,
	"reject":  model.VerificationRejected,
}

// Admin は審査待ちのポスター確認とドライバー一覧を表示する。
// GET /admin?q=search
func (h *AdminHandler) Admin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	all, err := h.admin.ListDrivers(ctx, "")
	if err != nil {
		renderFailure(h.renderer, w, r, err)
		return
	}
	drivers := all
	if query != "" {
		if drivers, err = h.admin.ListDrivers(ctx, query); err != nil {
			renderFailure(h.renderer, w, r, err)
			return
		}
	}

	pending, err := h.verifications.ListPending(ctx)
	if err != nil {
		renderFailure(h.renderer, w, r, err)
		return
	}

	names := make(map[string]string, len(all))
	for _, p := range all {
		name := p.FullName()
		if name == "" {
			name = p.Email
		}
		names[p.UserID] = name
	}

	h.renderer.Render(w, r, http.StatusOK, pageAdmin, "Admin", adminPageData{
		Pending: pending,
		Names:   names,
		Drivers: drivers,
		Query:   query,
	})
}

// Review はポスター確認を承認または却下する。
// POST /admin/verifications/{id}/{action}
func (h *AdminHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		seeOther(w, r, "/dashboard")
		return
	}

	status, ok := reviewActions[chi.URLParam(r, "action")]
	if !ok {
		h.renderer.Render(w, r, http.StatusNotFound, pageNotFound, "Not found", nil)
		return
	}
	if err := parseForm(r); err != nil {
		notifyFailure(r, noticeReviewFailed, model.NewInvalidInputError("could not read form"))
		seeOther(w, r, "/admin")
		return
	}

	verificationID := chi.URLParam(r, "id")
	if _, err := h.verifications.Review(r.Context(), verificationID, status, id.ID, r.PostFormValue("notes")); err != nil {
		notifyFailure(r, noticeReviewFailed, err)
		seeOther(w, r, "/admin")
		return
	}

	if status == model.VerificationApproved {
		notify(r, noticeApproved, noticeApprovedDesc, authstate.VariantDefault)
	} else {
		notify(r, noticeRejected, noticeRejectedDesc, authstate.VariantDefault)
	}
	seeOther(w, r, "/admin")
}
