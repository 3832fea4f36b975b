package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
)

type stubVerifier map[string]string

func (s stubVerifier) VerifyIDToken(_ context.Context, tok string) (*auth.Token, error) {
	uid, ok := s[tok]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &auth.Token{UID: uid}, nil
}

func TestRequireAuth(t *testing.T) {
	m := NewAuthMiddlewareWithVerifier(stubVerifier{"good": "uid-7"})
	tests := []struct {
		name    string
		header  string
		status  int
		wantUID string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
		{"ok", "Bearer good", http.StatusOK, "uid-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			var gotUID string
			err := m.RequireAuth(func(c echo.Context) error {
				gotUID, _ = c.Get("uid").(string)
				return c.NoContent(http.StatusOK)
			})(c)
			if err != nil {
				t.Fatalf("handler err: %v", err)
			}
			if rec.Code != tt.status {
				t.Fatalf("status=%d want %d", rec.Code, tt.status)
			}
			if gotUID != tt.wantUID {
				t.Fatalf("uid=%q want %q", gotUID, tt.wantUID)
			}
		})
	}
}

func TestNewAuthMiddlewareDisabled(t *testing.T) {
	m, err := NewAuthMiddleware(context.Background(), "")
	if err != nil || m != nil {
		t.Fatalf("got %v, %v; want nil, nil", m, err)
	}
}
