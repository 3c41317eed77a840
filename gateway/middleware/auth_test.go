package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testAdminSecret = "admin-secret"

func signAdminToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestAdminAuth() *AdminAuthenticator {
	return NewAdminAuthenticator(AdminAuthConfig{
		Enabled:    true,
		HMACSecret: testAdminSecret,
		Issuer:     "storefront",
		Audience:   "ops",
	}, nil)
}

func serveAdmin(auth *AdminAuthenticator, header string) (*httptest.ResponseRecorder, string) {
	var subject string
	handler := auth.Require("orders:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res, subject
}

func TestAdminAuthAcceptsScopedToken(t *testing.T) {
	token := signAdminToken(t, testAdminSecret, jwt.MapClaims{
		"sub":   "ops@example.com",
		"iss":   "storefront",
		"aud":   []string{"ops"},
		"scope": "orders:read webhooks:read",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	res, subject := serveAdmin(newTestAdminAuth(), "Bearer "+token)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if subject != "ops@example.com" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestAdminAuthRejections(t *testing.T) {
	valid := jwt.MapClaims{
		"iss":   "storefront",
		"aud":   "ops",
		"scope": []string{"orders:read"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	with := func(key string, value any) jwt.MapClaims {
		out := jwt.MapClaims{}
		for k, v := range valid {
			out[k] = v
		}
		out[key] = value
		return out
	}
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signAdminToken(t, "other", valid), http.StatusUnauthorized},
		{"expired", "Bearer " + signAdminToken(t, testAdminSecret, with("exp", time.Now().Add(-time.Hour).Unix())), http.StatusUnauthorized},
		{"issuer", "Bearer " + signAdminToken(t, testAdminSecret, with("iss", "elsewhere")), http.StatusUnauthorized},
		{"audience", "Bearer " + signAdminToken(t, testAdminSecret, with("aud", "public")), http.StatusUnauthorized},
		{"scope", "Bearer " + signAdminToken(t, testAdminSecret, with("scope", "webhooks:read")), http.StatusForbidden},
	}
	auth := newTestAdminAuth()
	for _, tc := range cases {
		res, _ := serveAdmin(auth, tc.header)
		if res.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, res.Code)
		}
	}
}

func TestAdminAuthDisabledRefusesAccess(t *testing.T) {
	auth := NewAdminAuthenticator(AdminAuthConfig{Enabled: false}, nil)
	res, _ := serveAdmin(auth, "")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when admin access is disabled, got %d", res.Code)
	}
}

func TestAdminAuthRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"scope": "orders:read"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	res, _ := serveAdmin(newTestAdminAuth(), "Bearer "+token)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected unsigned token to be rejected, got %d", res.Code)
	}
}
