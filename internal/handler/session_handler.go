package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/driverdash/internal/authstate"
)

// streamKeepAlive はSSE接続を維持するコメント送信の間隔。
const streamKeepAlive = 25 * time.Second

// SessionHandler は訪問者のセッション状態をJSONとSSEで公開する。
type SessionHandler struct {
	keepAlive time.Duration
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{keepAlive: streamKeepAlive}
}

type sessionUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// sessionResponse はセッション状態のJSON表現。
type sessionResponse struct {
	Authenticated bool                 `json:"authenticated"`
	User          *sessionUserResponse `json:"user"`
	IsAdmin       bool                 `json:"is_admin"`
	IsLoading     bool                 `json:"is_loading"`
}

func toSessionResponse(st authstate.State) sessionResponse {
	resp := sessionResponse{
		Authenticated: st.Authenticated(),
		IsAdmin:       st.IsAdmin,
		IsLoading:     st.IsLoading,
	}
	if st.Identity != nil {
		resp.User = &sessionUserResponse{ID: st.Identity.ID, Email: st.Identity.Email}
	}
	return resp
}

// Current は現在のセッション状態を返す。確定を待たない。
// GET /api/session
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	v, ok := requestVisitor(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(toSessionResponse(v.Controller.State()))
}

// Stream は公開された状態をServer-Sent Eventsで送り続ける。
// 接続直後に現在の状態を送り、以降は状態が公開されるたびに送る。
// 送信が追いつかない場合は最新の状態のみを送る。
// GET /api/session/stream
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	v, ok := requestVisitor(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	release := v.HoldOpen()
	defer release()

	updates := make(chan authstate.State, 1)
	unsubscribe := v.Controller.Subscribe(func(st authstate.State) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- st:
		default:
		}
	})
	defer unsubscribe()

	if err := writeStateEvent(w, rc, v.Controller.State()); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-updates:
			if err := writeStateEvent(w, rc, st); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeStateEvent(w http.ResponseWriter, rc *http.ResponseController, st authstate.State) error {
	data, err := json.Marshal(toSessionResponse(st))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		slog.Debug("session stream flush failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
