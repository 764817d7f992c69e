package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/driverdash/internal/authstate"
	"github.com/hitoshi/driverdash/internal/guard"
	"github.com/hitoshi/driverdash/internal/middleware"
	"github.com/hitoshi/driverdash/internal/visitor"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページ名
const (
	pageIndex     = "index"
	pageLogin     = "login"
	pageSignup    = "signup"
	pageDashboard = "dashboard"
	pageTrips     = "trips"
	pageAdmin     = "admin"
	pageNotFound  = "notfound"
	pageError     = "error"
)

var pageNames = []string{pageIndex, pageLogin, pageSignup, pageDashboard, pageTrips, pageAdmin, pageNotFound, pageError}

// ImageURLFunc は保存済みオブジェクトのキー（bucket/path）から公開URLを返す。
type ImageURLFunc func(key string) string

// pageData はすべてのページに渡すデータ。
type pageData struct {
	Title     string
	State     authstate.State
	Notices   []authstate.Notice
	CSRFToken string
	Data      any
}

// Renderer は埋め込みテンプレートからページを描画する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer はテンプレートを読み込んでRendererを生成する。
func NewRenderer(imageURL ImageURLFunc) (*Renderer, error) {
	if imageURL == nil {
		imageURL = defaultImageURL
	}
	funcs := template.FuncMap{
		"imageURL":   imageURL,
		"formatTime": formatTime,
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// Render はページを描画する。
// 状態はガードが判定に使ったものを優先し、通知は訪問者の受信箱から取り出す。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	t, ok := rd.pages[page]
	if !ok {
		slog.Error("unknown page", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pd := pageData{
		Title:     title,
		CSRFToken: middleware.CSRFToken(r.Context()),
		Data:      data,
	}
	if st, ok := guard.StateFromContext(r.Context()); ok {
		pd.State = st
	} else if v, ok := visitor.FromContext(r.Context()); ok {
		pd.State = v.Controller.State()
	}
	if v, ok := visitor.FromContext(r.Context()); ok {
		pd.Notices = v.DrainNotices()
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", pd); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func defaultImageURL(key string) string {
	return "/uploads/" + strings.TrimPrefix(key, "/")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
