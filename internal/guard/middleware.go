package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/driverdash/internal/authstate"
)

// StateSource はリクエストに対応する訪問者のセッション状態を返す。
// 実装は状態が確定するまで一定時間待機してよい。
type StateSource interface {
	SettledState(r *http.Request) authstate.State
}

// StateSourceFunc は関数をStateSourceとして扱うアダプター。
type StateSourceFunc func(r *http.Request) authstate.State

// SettledState はf(r)を返す。
func (f StateSourceFunc) SettledState(r *http.Request) authstate.State {
	return f(r)
}

// Recorder はガード判定のメトリクス記録先。
type Recorder interface {
	RecordGuardDecision(gate, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordGuardDecision(string, string) {}

// Option はMiddlewareのオプション。
type Option func(*options)

type options struct {
	recorder Recorder
}

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

type stateContextKey struct{}

// ContextWithState は判定に使った状態をコンテキストに格納する。
func ContextWithState(ctx context.Context, st authstate.State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, st)
}

// StateFromContext はガードを通過したリクエストの状態を返す。
func StateFromContext(ctx context.Context) (authstate.State, bool) {
	st, ok := ctx.Value(stateContextKey{}).(authstate.State)
	return st, ok
}

// Middleware はガードをHTTPミドルウェアとして返す。
// リダイレクトは303 See Other、待機中はloadingハンドラーで応答する。
// 描画する場合は判定に使った状態をコンテキストに格納して次へ渡す。
func Middleware(kind Kind, source StateSource, loading http.Handler, opts ...Option) func(next http.Handler) http.Handler {
	o := &options{recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(o)
	}
	if loading == nil {
		loading = LoadingHandler()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := source.SettledState(r)
			nav := Navigation{
				Path:     r.URL.RequestURI(),
				ReturnTo: r.URL.Query().Get(FromParam),
			}
			d := Decide(kind, st, nav)
			o.recorder.RecordGuardDecision(kind.String(), d.Outcome.String())

			switch d.Outcome {
			case Loading:
				loading.ServeHTTP(w, r)
			case Redirect:
				slog.Debug("guard redirect",
					slog.String("gate", kind.String()),
					slog.String("path", r.URL.Path),
					slog.String("location", d.Location),
				)
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(ContextWithState(r.Context(), st)))
			}
		})
	}
}

const loadingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="1">
<title>Loading...</title>
</head>
<body>
<div class="loading" role="status">Loading...</div>
</body>
</html>
`

// LoadingHandler はセッション確定待ちのプレースホルダーページを返す。
// キャッシュを禁止し、1秒後に再読み込みする。
func LoadingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(loadingHTML))
	})
}
