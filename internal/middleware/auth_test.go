package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudterm/console/internal/config"
)

func authServer() http.Handler {
	return RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(h http.Handler, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hosts", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth_ValidBearerToken(t *testing.T) {
	config.Cfg.AuthDisabled = false
	config.Cfg.AuthToken = "correct-token"

	rec := doRequest(authServer(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer correct-token")
	})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAuth_QueryToken(t *testing.T) {
	config.Cfg.AuthDisabled = false
	config.Cfg.AuthToken = "correct-token"

	rec := doRequest(authServer(), func(r *http.Request) {
		q := r.URL.Query()
		q.Set("token", "correct-token")
		r.URL.RawQuery = q.Encode()
	})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAuth_RejectsWrongToken(t *testing.T) {
	config.Cfg.AuthDisabled = false
	config.Cfg.AuthToken = "correct-token"

	rec := doRequest(authServer(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer wrong")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_RejectsMissingToken(t *testing.T) {
	config.Cfg.AuthDisabled = false
	config.Cfg.AuthToken = "correct-token"

	rec := doRequest(authServer(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_RejectsMalformedHeader(t *testing.T) {
	config.Cfg.AuthDisabled = false
	config.Cfg.AuthToken = "correct-token"

	rec := doRequest(authServer(), func(r *http.Request) {
		r.Header.Set("Authorization", "Basic correct-token")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_DisabledBypassesCheck(t *testing.T) {
	config.Cfg.AuthDisabled = true
	defer func() { config.Cfg.AuthDisabled = false }()

	rec := doRequest(authServer(), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAuth_UnconfiguredTokenLocksOut(t *testing.T) {
	config.Cfg.AuthDisabled = false
	config.Cfg.AuthToken = ""

	rec := doRequest(authServer(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer anything")
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
