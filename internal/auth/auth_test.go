package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/STRATINT/alertwatch/internal/config"
	"github.com/STRATINT/alertwatch/internal/logging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAuthConfig(t *testing.T, password string) config.AuthConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return config.AuthConfig{
		JWTSecret:         testSecret,
		AdminPasswordHash: string(hash),
		TokenDuration:     time.Hour,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	token, expires, err := GenerateToken("admin", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Errorf("unexpected expiry %v", expires)
	}

	subject, err := ValidateToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if subject != "admin" {
		t.Errorf("expected subject admin, got %q", subject)
	}

	if _, err := ValidateToken(token, "another-secret-of-some-length"); err == nil {
		t.Error("expected token signed with a different secret to be rejected")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	token, _, err := GenerateToken("admin", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken(token, testSecret); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("hunter22", hash) {
		t.Error("expected password to match its hash")
	}
	if CheckPassword("hunter23", hash) {
		t.Error("expected wrong password to be rejected")
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(config.AuthConfig{}); err != nil {
		t.Errorf("disabled config should be valid, got %v", err)
	}
	if err := ValidateConfig(testAuthConfig(t, "pw")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := config.AuthConfig{JWTSecret: testSecret, AdminPasswordHash: "plain-text", TokenDuration: time.Hour}
	if err := ValidateConfig(bad); err == nil || !strings.Contains(err.Error(), "ADMIN_PASSWORD_HASH") {
		t.Errorf("expected invalid hash error, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	cfg := testAuthConfig(t, "pw")
	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(cfg)(next)

	token, _, err := GenerateToken("admin", cfg.JWTSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}

	if gotSubject != "admin" {
		t.Errorf("expected subject admin in context, got %q", gotSubject)
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	handler := Middleware(config.AuthConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected pass-through, got %d", rr.Code)
	}
}

func TestLogin(t *testing.T) {
	cfg := testAuthConfig(t, "correct horse")
	h := NewLoginHandler(cfg, logging.Nop())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"wrong password", `{"password":"battery staple"}`, http.StatusUnauthorized},
		{"correct password", `{"password":"correct horse"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.Login(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.want != http.StatusOK {
				return
			}

			var resp loginResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			subject, err := ValidateToken(resp.Token, cfg.JWTSecret)
			if err != nil || subject != "admin" {
				t.Errorf("issued token invalid: subject=%q err=%v", subject, err)
			}
			if resp.ExpiresAt.IsZero() {
				t.Error("expected expires_at to be set")
			}
		})
	}
}
