// Package visitor はブラウザの訪問者ごとに認証クライアントとセッション状態を保持する。
package visitor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hitoshi/driverdash/internal/authstate"
	"github.com/hitoshi/driverdash/internal/identity"
)

// maxPendingNotices は未表示の通知の保持上限。
const maxPendingNotices = 20

// Visitor は訪問者1人分の認証クライアントとController。
// 通知はページ描画時に取り出されるまで保持する。
type Visitor struct {
	ID         string
	Client     *identity.Client
	Controller *authstate.Controller

	mu      sync.Mutex
	notices []authstate.Notice

	streams atomic.Int32
}

var _ authstate.Notifier = (*Visitor)(nil)

// Notify は通知を受け取り、次のページ描画まで保持する。
func (v *Visitor) Notify(n authstate.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, n)
	if len(v.notices) > maxPendingNotices {
		v.notices = v.notices[len(v.notices)-maxPendingNotices:]
	}
}

// DrainNotices は保持している通知を取り出す。
func (v *Visitor) DrainNotices() []authstate.Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	notices := v.notices
	v.notices = nil
	return notices
}

// HoldOpen はストリーム接続中であることを記録する。
// 接続中の訪問者はアイドルとして破棄されない。
func (v *Visitor) HoldOpen() (release func()) {
	v.streams.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { v.streams.Add(-1) })
	}
}

func (v *Visitor) streaming() bool {
	return v.streams.Load() > 0
}

type visitorContextKey struct{}

// ContextWithVisitor はコンテキストに訪問者を格納する。
func ContextWithVisitor(ctx context.Context, v *Visitor) context.Context {
	return context.WithValue(ctx, visitorContextKey{}, v)
}

// FromContext はRegistryのミドルウェアを通過したリクエストの訪問者を返す。
func FromContext(ctx context.Context) (*Visitor, bool) {
	v, ok := ctx.Value(visitorContextKey{}).(*Visitor)
	return v, ok && v != nil
}
