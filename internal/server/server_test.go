package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shinyyama/dispatch-backend/internal/config"
)

func TestAllowOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"https://127.0.0.1:8443", true},
		{"https://dispatch-ui.vercel.app", true},
		{"http://dispatch-ui.vercel.app", false},
		{"https://evil-vercel.app.example.com", false},
		{"https://example.com", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			got, err := allowOrigin(tt.origin)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("allowOrigin(%q)=%v want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestHealthzBeforeDB(t *testing.T) {
	srv := New(NewServices(nil, Deps{Dispatch: config.DefaultDispatch()}), nil, "abc123", "now")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"db_ready":false`) || !strings.Contains(body, `"git_sha":"abc123"`) {
		t.Fatalf("body=%s", body)
	}
}

func TestUnknownSweepRouteIsBadRequest(t *testing.T) {
	srv := New(NewServices(nil, Deps{Dispatch: config.DefaultDispatch()}), nil, "", "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reconcile/bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestReportRoutesValidateBeforeQuerying(t *testing.T) {
	srv := New(NewServices(nil, Deps{Dispatch: config.DefaultDispatch()}), nil, "", "")
	for _, target := range []string{
		"/api/reports/overview?from=yesterday",
		"/api/reports/overview?from=2026-03-10&to=2026-03-01",
		"/api/reports/transporters?from=2026-03-10&to=2026-03-01",
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s", target, rec.Code, rec.Body.String())
		}
	}
}
