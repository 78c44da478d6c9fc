package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cloudterm/console/internal/bridge"
	"github.com/cloudterm/console/internal/crypto"
	"github.com/cloudterm/console/internal/database"
	"github.com/cloudterm/console/internal/directory"
	"github.com/cloudterm/console/internal/remote"
	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates a fresh in-memory SQLite database for each test.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	database.DB = db
	if err := db.AutoMigrate(&database.SessionEvent{}, &database.Setting{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
	return result
}

func TestHealthCheck(t *testing.T) {
	setupTestDB(t)
	SessionBridge = bridge.New(&stubEstablisher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	result := decodeBody(t, rec)
	if result["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", result["status"])
	}
	if result["sessions"] != float64(0) {
		t.Errorf("sessions = %v, want 0", result["sessions"])
	}
}

func TestListSessionAudit(t *testing.T) {
	setupTestDB(t)
	database.RecordSessionEvent(&database.SessionEvent{
		SessionID: "s1", Event: "opened", TargetKind: "shell", Target: "ops@10.0.0.5:22",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
	rec := httptest.NewRecorder()
	ListSessionAudit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	result := decodeBody(t, rec)
	events, ok := result["events"].([]interface{})
	if !ok || len(events) != 1 {
		t.Fatalf("events = %v, want one entry", result["events"])
	}
}

func TestListSessions_ReflectsBridgeState(t *testing.T) {
	est := &stubEstablisher{}
	SessionBridge = bridge.New(est, nil)

	s, _, err := SessionBridge.Open(context.Background(),
		remote.Target{Kind: remote.TargetShell, Host: "10.0.0.5", Username: "ops", Secret: "topsecret"},
		nopNotifier{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	ListSessions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !json.Valid([]byte(body)) {
		t.Fatalf("invalid json: %q", body)
	}
	result := decodeBody(t, rec)
	sessions := result["sessions"].([]interface{})
	if len(sessions) != 1 {
		t.Fatalf("sessions = %v, want one entry", sessions)
	}
	entry := sessions[0].(map[string]interface{})
	if entry["id"] != s.ID {
		t.Errorf("id = %v, want %s", entry["id"], s.ID)
	}
	if entry["target"] != "ops@10.0.0.5:22" {
		t.Errorf("target = %v", entry["target"])
	}

	// The secret must never surface in the listing.
	if strings.Contains(body, "topsecret") {
		t.Error("session listing leaks the secret")
	}

	SessionBridge.Terminate(s.ID, bridge.ReasonClientClose)
}

func TestListHosts_MasksSecrets(t *testing.T) {
	dirPath := filepath.Join(t.TempDir(), "directory.yaml")
	if err := os.WriteFile(dirPath, []byte(`
hosts:
  - name: web-1
    host: 10.0.0.5
    username: ops
    secret: hunter2password
`), 0600); err != nil {
		t.Fatalf("write directory: %v", err)
	}
	d, err := directory.Load(dirPath, nil)
	if err != nil {
		t.Fatalf("load directory: %v", err)
	}
	Dir = d

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hosts", nil)
	rec := httptest.NewRecorder()
	ListHosts(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "hunter2") {
		t.Error("host listing leaks the secret")
	}
	result := decodeBody(t, rec)
	hosts := result["hosts"].([]interface{})
	if len(hosts) != 1 {
		t.Fatalf("hosts = %v, want one entry", hosts)
	}
	entry := hosts[0].(map[string]interface{})
	if got, _ := entry["secret"].(string); !strings.HasPrefix(got, "****") {
		t.Errorf("secret = %q, want masked", got)
	}
}

func TestEncryptSecret_RoundTrip(t *testing.T) {
	setupTestDB(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/secrets/encrypt",
		strings.NewReader(`{"secret": "p4ssw0rd"}`))
	rec := httptest.NewRecorder()
	EncryptSecret(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody(t, rec)
	encrypted, _ := result["encrypted"].(string)
	if encrypted == "" || strings.Contains(encrypted, "p4ssw0rd") {
		t.Fatalf("encrypted = %q", encrypted)
	}
	if result["masked"] != "****w0rd" {
		t.Errorf("masked = %v, want ****w0rd", result["masked"])
	}

	// The ciphertext decrypts with the same server key, so it works as a
	// directory host secret.
	plain, err := crypto.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "p4ssw0rd" {
		t.Errorf("decrypted = %q", plain)
	}
}

func TestEncryptSecret_RejectsEmpty(t *testing.T) {
	setupTestDB(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/secrets/encrypt", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	EncryptSecret(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// captureRecorder keeps the close reasons the bridge reported.
type captureRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *captureRecorder) Record(sessionID, event string, target remote.Target, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event == "closed" {
		r.reasons = append(r.reasons, reason)
	}
}

func TestCloseSession_REST(t *testing.T) {
	est := &stubEstablisher{}
	auditRec := &captureRecorder{}
	SessionBridge = bridge.New(est, auditRec)

	s, _, err := SessionBridge.Open(context.Background(),
		remote.Target{Kind: remote.TargetShell, Host: "10.0.0.5", Username: "ops"}, nopNotifier{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	r := chi.NewRouter()
	r.Delete("/api/v1/sessions/{sessionId}", CloseSession)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+s.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := SessionBridge.SessionCount(); n != 0 {
		t.Errorf("session count = %d, want 0", n)
	}

	// The audit trail distinguishes an operator close from a client close.
	auditRec.mu.Lock()
	reasons := append([]string(nil), auditRec.reasons...)
	auditRec.mu.Unlock()
	if len(reasons) != 1 || reasons[0] != bridge.ReasonOperatorClose {
		t.Errorf("close reasons = %v, want [%q]", reasons, bridge.ReasonOperatorClose)
	}

	// Closing again is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+s.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second close status = %d, want 404", rec.Code)
	}
}

type nopNotifier struct{}

func (nopNotifier) Output(string, []byte) error { return nil }
func (nopNotifier) Closed(string, string)       {}
