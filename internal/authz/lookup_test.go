package authz

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type mockAdminFlagReader struct {
	findFn func(ctx context.Context, userID string) (bool, bool, error)
	calls  int
}

func (m *mockAdminFlagReader) FindAdminFlag(ctx context.Context, userID string) (bool, bool, error) {
	m.calls++
	if m.findFn != nil {
		return m.findFn(ctx, userID)
	}
	return false, false, nil
}

type mockRecorder struct {
	failures  int
	latencies int
}

func (m *mockRecorder) RecordAdminLookupFailure()                { m.failures++ }
func (m *mockRecorder) RecordAdminLookupLatency(_ time.Duration) { m.latencies++ }

var _ AdminFlagReader = (*mockAdminFlagReader)(nil)
var _ Recorder = (*mockRecorder)(nil)

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name    string
		isAdmin bool
		found   bool
		err     error
		want    bool
		failure int
	}{
		{"管理者", true, true, nil, true, 0},
		{"一般ドライバー", false, true, nil, false, 0},
		{"プロフィールなし", false, false, nil, false, 0},
		{"読み取り失敗", true, true, errors.New("connection refused"), false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockAdminFlagReader{
				findFn: func(_ context.Context, _ string) (bool, bool, error) {
					return tt.isAdmin, tt.found, tt.err
				},
			}
			rec := &mockRecorder{}
			var buf bytes.Buffer
			lookup := NewLookup(reader, rec, slog.New(slog.NewJSONHandler(&buf, nil)))

			if got := lookup.IsAdmin(context.Background(), "user-1"); got != tt.want {
				t.Errorf("IsAdmin = %v, want %v", got, tt.want)
			}
			if rec.failures != tt.failure {
				t.Errorf("failures = %d, want %d", rec.failures, tt.failure)
			}
			if rec.latencies != 1 {
				t.Errorf("latencies = %d, want 1", rec.latencies)
			}
			if tt.err != nil && !strings.Contains(buf.String(), "admin lookup failed") {
				t.Errorf("expected error log, got %q", buf.String())
			}
		})
	}
}

func TestIsAdmin_EmptyUserID_SkipsLookup(t *testing.T) {
	reader := &mockAdminFlagReader{}
	lookup := NewLookup(reader, nil, nil)

	if lookup.IsAdmin(context.Background(), "") {
		t.Error("empty user id must not be admin")
	}
	if reader.calls != 0 {
		t.Errorf("FindAdminFlag called %d times, want 0", reader.calls)
	}
}
