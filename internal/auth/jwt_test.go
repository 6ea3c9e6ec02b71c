package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callcore/internal/config"
)

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	return New(config.APIConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Users:     []config.UserConfig{{Username: "ops", PasswordHash: hash}},
	})
}

func TestLogin(t *testing.T) {
	a := newAuth(t)

	token, err := a.Login("ops", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := a.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Username != "ops" {
		t.Errorf("Username = %q", claims.Username)
	}

	if _, err := a.Login("ops", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := a.Login("nobody", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	a := newAuth(t)
	issued := time.Now().Add(-2 * time.Hour)
	a.now = func() time.Time { return issued }
	token, err := a.GenerateToken("ops")
	if err != nil {
		t.Fatal(err)
	}
	a.now = time.Now
	if _, err := a.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token err = %v", err)
	}
}

func TestTokenFromOtherSecret(t *testing.T) {
	a := newAuth(t)
	other := New(config.APIConfig{JWTSecret: "other"})
	token, _ := other.GenerateToken("ops")
	if _, err := a.ParseToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestMiddleware(t *testing.T) {
	a := newAuth(t)
	token, _ := a.GenerateToken("ops")

	var seen string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := UserFromContext(r.Context())
		if err != nil {
			t.Errorf("UserFromContext: %v", err)
			return
		}
		seen = claims.Username
	}))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"header", "Bearer " + token, "", http.StatusOK},
		{"query", "", "?token=" + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/v1/calls"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && seen != "ops" {
				t.Errorf("user = %q", seen)
			}
		})
	}
}
