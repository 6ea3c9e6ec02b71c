package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callcore/internal/auth"
	"callcore/internal/callmanager"
	"callcore/internal/config"
	"callcore/internal/database"
	"callcore/internal/logging"
	"callcore/internal/radio/simradio"
	"callcore/internal/telephony"
	"callcore/internal/tracker"
)

func init() {
	logging.Discard()
}

type fakeHistory struct {
	filter database.HistoryFilter
}

func (h *fakeHistory) ListCallLogs(_ context.Context, f database.HistoryFilter) ([]database.CallLog, error) {
	h.filter = f
	return []database.CallLog{{Phone: "p1", Cause: "NORMAL"}}, nil
}

type harness struct {
	t       *testing.T
	handler http.Handler
	token   string
	radio   *simradio.Radio
	tracker *tracker.CallTracker
}

func newHarness(t *testing.T, history HistoryStore) *harness {
	t.Helper()
	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.APIConfig{
		JWTSecret: "secret",
		TokenTTL:  time.Hour,
		Users:     []config.UserConfig{{Username: "ops", PasswordHash: hash}},
	}
	authn := auth.New(cfg)

	r := simradio.New(simradio.Options{})
	tr := tracker.New(tracker.Config{PhoneID: "p1", Technology: telephony.TechGSM, Radio: r})
	tr.Start()
	t.Cleanup(tr.Stop)

	calls := callmanager.New()
	if err := calls.Register(tr); err != nil {
		t.Fatal(err)
	}

	token, err := authn.GenerateToken("ops")
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		t:       t,
		handler: NewServer(cfg, calls, authn, nil, history).Handler(),
		token:   token,
		radio:   r,
		tracker: tr,
	}
	h.sync()
	return h
}

func (h *harness) sync() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.tracker.Sync(ctx); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) do(method, path string, body interface{}, authed bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t, nil)
	rec, body := h.do(http.MethodGet, "/health", nil, false)
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["phones"] != float64(1) {
		t.Fatalf("%d %v", rec.Code, body)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/api/v1/phones", "/api/v1/calls", "/ws"} {
		rec, _ := h.do(http.MethodGet, path, nil, false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(http.MethodPost, "/api/v1/login", map[string]string{"username": "ops", "password": "pw"}, false)
	if rec.Code != http.StatusOK || body["token"] == "" {
		t.Fatalf("%d %v", rec.Code, body)
	}
	rec, _ = h.do(http.MethodPost, "/api/v1/login", map[string]string{"username": "ops", "password": "nope"}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password: %d", rec.Code)
	}
}

func TestDialAndHangup(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(http.MethodPost, "/api/v1/phones/p1/dial", map[string]string{"address": "5551234"}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("dial: %d %v", rec.Code, body)
	}
	if body["address"] != "5551234" || body["phone"] != "p1" {
		t.Errorf("dial body = %v", body)
	}
	h.sync()
	if got := h.radio.Dialed(); len(got) != 1 || got[0] != "5551234" {
		t.Fatalf("radio dialed %v", got)
	}

	rec, body = h.do(http.MethodGet, "/api/v1/calls", nil, true)
	if rec.Code != http.StatusOK || body["state"] != "OFFHOOK" {
		t.Fatalf("calls: %d %v", rec.Code, body)
	}

	rec, body = h.do(http.MethodPost, "/api/v1/calls/hangup", nil, true)
	if rec.Code != http.StatusOK || body["role"] != "FOREGROUND" {
		t.Fatalf("hangup: %d %v", rec.Code, body)
	}
	h.sync()
	if calls := h.radio.Calls(); len(calls) != 0 {
		t.Errorf("radio still has %v", calls)
	}
}

func TestDialErrors(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(http.MethodPost, "/api/v1/phones/nope/dial", map[string]string{"address": "1"}, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown phone: %d", rec.Code)
	}
	rec, _ = h.do(http.MethodPost, "/api/v1/phones/p1/dial", map[string]string{"address": "1", "clir": "bogus"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad clir: %d", rec.Code)
	}
	rec, _ = h.do(http.MethodPost, "/api/v1/phones/p1/dial", map[string]string{}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing address: %d", rec.Code)
	}

	h.radio.SetPower(false)
	h.sync()
	rec, body := h.do(http.MethodPost, "/api/v1/phones/p1/dial", map[string]string{"address": "1"}, true)
	if rec.Code != http.StatusConflict || body["kind"] != "POWER_OFF" {
		t.Errorf("power off: %d %v", rec.Code, body)
	}
}

func TestAcceptRingingCall(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(http.MethodPost, "/api/v1/calls/accept", nil, true)
	if rec.Code != http.StatusConflict || body["kind"] != "INVALID_STATE" {
		t.Fatalf("accept with nothing ringing: %d %v", rec.Code, body)
	}

	if _, err := h.radio.TriggerRing("5550000"); err != nil {
		t.Fatal(err)
	}
	h.sync()
	rec, body = h.do(http.MethodPost, "/api/v1/calls/accept", nil, true)
	if rec.Code != http.StatusOK || body["phone"] != "p1" {
		t.Fatalf("accept: %d %v", rec.Code, body)
	}
	h.sync()
	if calls := h.radio.Calls(); len(calls) != 1 || calls[0].State != telephony.StateActive {
		t.Fatalf("radio calls = %+v", calls)
	}
}

func TestDTMF(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(http.MethodPost, "/api/v1/calls/dtmf", map[string]string{"digit": "5"}, true)
	if rec.Code != http.StatusOK || body["sent"] != false {
		t.Fatalf("idle dtmf: %d %v", rec.Code, body)
	}

	h.radio.TriggerRing("5550000")
	h.sync()
	h.do(http.MethodPost, "/api/v1/calls/accept", nil, true)
	h.sync()

	rec, body = h.do(http.MethodPost, "/api/v1/calls/dtmf", map[string]string{"digit": "x"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad digit: %d %v", rec.Code, body)
	}
	rec, body = h.do(http.MethodPost, "/api/v1/calls/dtmf", map[string]string{"digit": "7"}, true)
	if rec.Code != http.StatusOK || body["sent"] != true {
		t.Fatalf("dtmf: %d %v", rec.Code, body)
	}
	h.sync()
	if h.radio.Tones() != "7" {
		t.Errorf("tones = %q", h.radio.Tones())
	}
}

func TestPostDialRejectsUnknownAction(t *testing.T) {
	h := newHarness(t, nil)
	rec, _ := h.do(http.MethodPost, "/api/v1/phones/p1/postdial", map[string]interface{}{"connection_id": 1, "action": "dance"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t, nil)
	rec, _ := h.do(http.MethodGet, "/api/v1/history", nil, true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled history: %d", rec.Code)
	}

	store := &fakeHistory{}
	h = newHarness(t, store)
	rec, _ = h.do(http.MethodGet, "/api/v1/history?phone=p1&limit=5&from=2026-01-02T00:00:00Z", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	want := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if store.filter.Phone != "p1" || store.filter.Limit != 5 || !store.filter.From.Equal(want) || !store.filter.To.IsZero() {
		t.Errorf("filter = %+v", store.filter)
	}

	rec, _ = h.do(http.MethodGet, "/api/v1/history?limit=-1", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", rec.Code)
	}
}
