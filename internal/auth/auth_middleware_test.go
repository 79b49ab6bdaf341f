package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	valid, err := IssueToken(secret, "u-1", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := IssueToken(secret, "u-1", RoleAdmin, -time.Minute)
	foreign, _ := IssueToken("other", "u-1", RoleAdmin, time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"malformed header", "Token " + valid, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}

	var seen string
	h := AuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("identity missing")
		}
		seen = claims.UserID
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/sync", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if seen != "u-1" {
		t.Errorf("user id = %q", seen)
	}
}

func TestRoleMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RoleMiddleware(RoleAdmin)(ok)

	tests := []struct {
		name   string
		claims *Claims
		want   int
	}{
		{"no identity", nil, http.StatusForbidden},
		{"operator", &Claims{UserID: "u", Role: RoleOperator}, http.StatusForbidden},
		{"admin", &Claims{UserID: "u", Role: RoleAdmin}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/margins", nil)
			if tt.claims != nil {
				req = req.WithContext(WithIdentity(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := RateLimitKey(req); got != "ip:192.0.2.7" {
		t.Errorf("anonymous key = %q", got)
	}
	req = req.WithContext(WithIdentity(req.Context(), &Claims{UserID: "42"}))
	if got := RateLimitKey(req); got != "user:42" {
		t.Errorf("user key = %q", got)
	}
}
