package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"smsrelay/config"
	"smsrelay/models"
	"smsrelay/service"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	queue, err := service.NewCommandQueue(filepath.Join(dir, "commandQueue.json"))
	if err != nil {
		t.Fatalf("queue init failed: %v", err)
	}
	db, err := config.InitDatabase(filepath.Join(dir, "inbox.db"))
	if err != nil {
		t.Fatalf("inbox init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	d := service.NewRelayDispatcher(
		service.NewDeviceRegistry(), queue, service.NewSessionStore(), service.NewInboxStore(db),
		nil, true,
	)
	hub := NewDeviceHub(d)
	d.SetPusher(hub)

	router := gin.New()
	SetupRoutes(router, d, hub)
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestConnectRequiresUUID(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, "POST", "/connect", `{"model":"Pixel"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestConnectThenDrain(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, "POST", "/connect", `{"uuid":"D1","model":"Pixel","battery":80,"sim1":"+111"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(router, "GET", "/commands?uuid=D1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var cmds []models.Command
	if err := json.Unmarshal(w.Body.Bytes(), &cmds); err != nil {
		t.Fatalf("response is not a command array: %v", err)
	}
	if len(cmds) != 0 {
		t.Fatalf("expected empty list, got %d commands", len(cmds))
	}
}

func TestDrainRequiresUUID(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, "GET", "/commands", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestReportSMSValidation(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, "POST", "/sms", `{"uuid":"D1","from":"+1555"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing body, got %d", w.Code)
	}

	w = doJSON(router, "POST", "/sms", `{"uuid":"D1","from":"+1555","body":"hello","sim":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAckValidation(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, "POST", "/ack", `{"uuid":"D1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing command_id, got %d", w.Code)
	}

	w = doJSON(router, "POST", "/ack", `{"uuid":"D1","command_id":"c1","status":"done"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetDevices(t *testing.T) {
	router := newTestRouter(t)
	doJSON(router, "POST", "/connect", `{"uuid":"D1","model":"Pixel","battery":80}`)

	w := doJSON(router, "GET", "/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("expected success envelope: %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
