package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/driverdash/internal/authstate"
	"github.com/hitoshi/driverdash/internal/driver"
	"github.com/hitoshi/driverdash/internal/model"
)

// ダッシュボードの通知文言
const (
	noticeProfileUpdated     = "Profile updated"
	noticeProfileUpdatedDesc = "Your profile has been updated successfully"
	noticeUpdateFailed       = "Update failed"
	noticeMissingImage       = "Missing image"
	noticeMissingImageDesc   = "Please select an image to upload"
	noticeSubmitted          = "Verification submitted"
	noticeSubmittedDesc      = "Your verification has been submitted for review"
	noticeSubmissionFailed   = "Submission failed"
	noticeTripLogged         = "Trip logged"
	noticeTripLoggedDesc     = "Your trip has been logged successfully"
	noticeTripFailed         = "Error logging trip"
)

// ProfileServiceInterface はプロフィール関連のサービスインターフェース。
type ProfileServiceInterface interface {
	GetOrCreate(ctx context.Context, userID, email string) (*model.DriverProfile, error)
	Update(ctx context.Context, userID, email string, in driver.ProfileInput, carPhoto *driver.Upload) (*model.DriverProfile, error)
}

// TripServiceInterface は走行記録のサービスインターフェース。
type TripServiceInterface interface {
	Log(ctx context.Context, driverID string, in driver.TripInput, images driver.TripImages) (*model.Trip, error)
	List(ctx context.Context, driverID string) ([]*model.Trip, error)
}

// VerificationServiceInterface はポスター確認のサービスインターフェース。
type VerificationServiceInterface interface {
	Submit(ctx context.Context, driverID string, image *driver.Upload) (*model.PosterVerification, error)
	ListPending(ctx context.Context) ([]*model.PosterVerification, error)
	ListByDriver(ctx context.Context, driverID string) ([]*model.PosterVerification, error)
	Review(ctx context.Context, id string, status model.VerificationStatus, reviewerID, notes string) (*model.PosterVerification, error)
}

// DashboardHandler はドライバー向けページのハンドラー。
type DashboardHandler struct {
	profiles      ProfileServiceInterface
	trips         TripServiceInterface
	verifications VerificationServiceInterface
	renderer      *Renderer
	maxUpload     int64
}

// NewDashboardHandler はDashboardHandlerを生成する。
// maxUploadは1ファイルあたりの最大バイト数（0以下で無制限）。
func NewDashboardHandler(profiles ProfileServiceInterface, trips TripServiceInterface, verifications VerificationServiceInterface, renderer *Renderer, maxUpload int64) *DashboardHandler {
	return &DashboardHandler{
		profiles:      profiles,
		trips:         trips,
		verifications: verifications,
		renderer:      renderer,
		maxUpload:     maxUpload,
	}
}

type dashboardPageData struct {
	Profile       *model.DriverProfile
	Verifications []*model.PosterVerification
}

type tripsPageData struct {
	Trips   []*model.Trip
	TotalKm float64
}

// Dashboard はプロフィールとポスター確認の一覧を表示する。
// GET /dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		seeOther(w, r, "/login")
		return
	}

	profile, err := h.profiles.GetOrCreate(r.Context(), id.ID, id.Email)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	verifications, err := h.verifications.ListByDriver(r.Context(), id.ID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, pageDashboard, "Dashboard", dashboardPageData{
		Profile:       profile,
		Verifications: verifications,
	})
}

// UpdateProfile はプロフィールを更新する。車両写真は任意。
// POST /dashboard/profile
func (h *DashboardHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		seeOther(w, r, "/login")
		return
	}
	if err := parseForm(r); err != nil {
		notifyFailure(r, noticeUpdateFailed, model.NewInvalidInputError("could not read form"))
		seeOther(w, r, "/dashboard")
		return
	}

	in, err := profileInputFromForm(r)
	if err != nil {
		notifyFailure(r, noticeUpdateFailed, err)
		seeOther(w, r, "/dashboard")
		return
	}

	photo, closePhoto, err := formUpload(r, "car_photo", h.maxUpload)
	defer closePhoto()
	if err != nil {
		notifyFailure(r, noticeUpdateFailed, err)
		seeOther(w, r, "/dashboard")
		return
	}

	if _, err := h.profiles.Update(r.Context(), id.ID, id.Email, in, photo); err != nil {
		notifyFailure(r, noticeUpdateFailed, err)
		seeOther(w, r, "/dashboard")
		return
	}

	notify(r, noticeProfileUpdated, noticeProfileUpdatedDesc, authstate.VariantDefault)
	seeOther(w, r, "/dashboard")
}

// SubmitVerification はポスター掲示の確認写真を提出する。
// POST /dashboard/verifications
func (h *DashboardHandler) SubmitVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		seeOther(w, r, "/login")
		return
	}
	if err := parseForm(r); err != nil {
		notify(r, noticeMissingImage, noticeMissingImageDesc, authstate.VariantDestructive)
		seeOther(w, r, "/dashboard")
		return
	}

	image, closeImage, err := formUpload(r, "image", h.maxUpload)
	defer closeImage()
	if err != nil {
		notifyFailure(r, noticeSubmissionFailed, err)
		seeOther(w, r, "/dashboard")
		return
	}
	if image == nil {
		notify(r, noticeMissingImage, noticeMissingImageDesc, authstate.VariantDestructive)
		seeOther(w, r, "/dashboard")
		return
	}

	if _, err := h.verifications.Submit(r.Context(), id.ID, image); err != nil {
		notifyFailure(r, noticeSubmissionFailed, err)
		seeOther(w, r, "/dashboard")
		return
	}

	notify(r, noticeSubmitted, noticeSubmittedDesc, authstate.VariantDefault)
	seeOther(w, r, "/dashboard")
}

// Trips は走行記録の一覧と合計距離を表示する。
// GET /dashboard/trips
func (h *DashboardHandler) Trips(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		seeOther(w, r, "/login")
		return
	}

	trips, err := h.trips.List(r.Context(), id.ID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, pageTrips, "Trips", tripsPageData{
		Trips:   trips,
		TotalKm: driver.TotalDistance(trips),
	})
}

// LogTrip は走行を記録する。開始・途中・終了の写真はいずれも任意。
// POST /dashboard/trips
func (h *DashboardHandler) LogTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		seeOther(w, r, "/login")
		return
	}
	if err := parseForm(r); err != nil {
		notifyFailure(r, noticeTripFailed, model.NewInvalidInputError("could not read form"))
		seeOther(w, r, "/dashboard/trips")
		return
	}

	in := driver.TripInput{
		StartLocation: r.PostFormValue("start_location"),
		EndLocation:   r.PostFormValue("end_location"),
		Notes:         r.PostFormValue("notes"),
	}
	if raw := strings.TrimSpace(r.PostFormValue("distance_km")); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			notifyFailure(r, noticeTripFailed, model.NewInvalidInputError("distance must be a number"))
			seeOther(w, r, "/dashboard/trips")
			return
		}
		in.DistanceKm = d
	}

	var images driver.TripImages
	slots := []struct {
		field string
		dest  **driver.Upload
	}{
		{"start_image", &images.Start},
		{"midway_image", &images.Midway},
		{"end_image", &images.End},
	}
	for _, slot := range slots {
		up, closeUp, err := formUpload(r, slot.field, h.maxUpload)
		defer closeUp()
		if err != nil {
			notifyFailure(r, noticeTripFailed, err)
			seeOther(w, r, "/dashboard/trips")
			return
		}
		*slot.dest = up
	}

	if _, err := h.trips.Log(r.Context(), id.ID, in, images); err != nil {
		notifyFailure(r, noticeTripFailed, err)
		seeOther(w, r, "/dashboard/trips")
		return
	}

	notify(r, noticeTripLogged, noticeTripLoggedDesc, authstate.VariantDefault)
	seeOther(w, r, "/dashboard/trips")
}

func (h *DashboardHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	renderFailure(h.renderer, w, r, err)
}

// profileInputFromForm はフォームの値からProfileInputを組み立てる。
func profileInputFromForm(r *http.Request) (driver.ProfileInput, error) {
	in := driver.ProfileInput{
		FirstName:     r.PostFormValue("first_name"),
		LastName:      r.PostFormValue("last_name"),
		Phone:         r.PostFormValue("phone"),
		LicenseNumber: r.PostFormValue("license_number"),
		CarMake:       r.PostFormValue("car_make"),
		CarModel:      r.PostFormValue("car_model"),
		CarColor:      r.PostFormValue("car_color"),
		CarPlate:      r.PostFormValue("car_plate"),
	}
	if raw := strings.TrimSpace(r.PostFormValue("car_year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return in, model.NewInvalidInputError("car year must be a number")
		}
		in.CarYear = &year
	}
	return in, nil
}
