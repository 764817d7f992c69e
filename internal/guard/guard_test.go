package guard

import (
	"testing"

	"github.com/hitoshi/driverdash/internal/authstate"
)

var (
	loadingState = authstate.State{IsLoading: true}
	loggedOut    = authstate.State{}
	driverState  = authstate.State{Identity: &authstate.Identity{ID: "u1", Email: "a@b.com"}}
	adminState   = authstate.State{Identity: &authstate.Identity{ID: "u2", Email: "admin@b.com"}, IsAdmin: true}
	dashboardNav = Navigation{Path: "/dashboard"}
	adminNav     = Navigation{Path: "/admin"}
	loginNav     = Navigation{Path: "/login"}
	indexNav     = Navigation{Path: "/"}
	allKinds     = []Kind{Protected, Admin, PublicOnly, Index}
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		st   authstate.State
		nav  Navigation
		want Decision
	}{
		// シナリオA: 未ログインでダッシュボードを開くとログインへ
		{"Protected_未ログイン", Protected, loggedOut, dashboardNav,
			Decision{Outcome: Redirect, Location: "/login?from=%2Fdashboard", From: "/dashboard"}},
		{"Protected_クエリ付き", Protected, loggedOut, Navigation{Path: "/dashboard/trips?tab=new"},
			Decision{Outcome: Redirect, Location: "/login?from=%2Fdashboard%2Ftrips%3Ftab%3Dnew", From: "/dashboard/trips?tab=new"}},
		{"Protected_ログイン済み", Protected, driverState, dashboardNav, Decision{Outcome: Render}},
		{"Protected_管理者", Protected, adminState, dashboardNav, Decision{Outcome: Render}},

		// シナリオD: 管理者でないユーザーはダッシュボードへ
		{"Admin_非管理者", Admin, driverState, adminNav, Decision{Outcome: Redirect, Location: "/dashboard"}},
		{"Admin_未ログインもダッシュボードへ", Admin, loggedOut, adminNav, Decision{Outcome: Redirect, Location: "/dashboard"}},
		{"Admin_管理者", Admin, adminState, adminNav, Decision{Outcome: Render}},

		{"PublicOnly_未ログイン", PublicOnly, loggedOut, loginNav, Decision{Outcome: Render}},
		{"PublicOnly_戻り先なし", PublicOnly, driverState, loginNav, Decision{Outcome: Redirect, Location: "/dashboard"}},
		{"PublicOnly_戻り先あり", PublicOnly, driverState, Navigation{Path: "/login", ReturnTo: "/dashboard/trips"},
			Decision{Outcome: Redirect, Location: "/dashboard/trips"}},
		{"PublicOnly_外部URLは無視", PublicOnly, driverState, Navigation{Path: "/login", ReturnTo: "https://evil.example.com"},
			Decision{Outcome: Redirect, Location: "/dashboard"}},

		{"Index_未ログイン", Index, loggedOut, indexNav, Decision{Outcome: Render}},
		{"Index_ログイン済み", Index, driverState, indexNav, Decision{Outcome: Redirect, Location: "/dashboard"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.kind, tt.st, tt.nav)
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecide_LoadingAlwaysWaits(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			if got := Decide(kind, loadingState, dashboardNav); got.Outcome != Loading {
				t.Errorf("Decide() outcome = %v, want loading", got.Outcome)
			}
		})
	}
}

func TestIsLocalPath(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"/dashboard", true},
		{"/dashboard?x=1", true},
		{"/", true},
		{"", false},
		{"dashboard", false},
		{"//evil.example.com", false},
		{"/\\evil.example.com", false},
		{"https://evil.example.com/x", false},
		{"javascript:alert(1)", false},
		{"/a\r\nLocation: x", false},
	}
	for _, tt := range tests {
		if got := IsLocalPath(tt.in); got != tt.want {
			t.Errorf("IsLocalPath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	if Protected.String() != "protected" || Admin.String() != "admin" ||
		PublicOnly.String() != "public_only" || Index.String() != "index" {
		t.Error("unexpected kind names")
	}
	if Kind(99).String() != "unknown" {
		t.Error("unknown kind should stringify as unknown")
	}
}
