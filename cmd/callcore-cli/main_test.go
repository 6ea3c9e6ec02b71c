package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type captured struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]interface{}
}

func fakeAPI(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.method = r.Method
		c.path = r.URL.Path
		c.query = r.URL.RawQuery
		c.auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&c.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--host", srv.URL, "--token", "tok"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestDial(t *testing.T) {
	srv, req := fakeAPI(t, http.StatusCreated, `{"id":3,"telecom_call_id":"abc","state":"DIALING"}`)
	out, err := run(t, srv, "dial", "p1", "5551234", "--clir", "suppression")
	if err != nil {
		t.Fatal(err)
	}
	if req.method != http.MethodPost || req.path != "/api/v1/phones/p1/dial" || req.auth != "Bearer tok" {
		t.Errorf("request = %+v", req)
	}
	if req.body["address"] != "5551234" || req.body["clir"] != "suppression" {
		t.Errorf("body = %v", req.body)
	}
	if !strings.Contains(out, "connection 3") {
		t.Errorf("output = %q", out)
	}
}

func TestDTMFNotSent(t *testing.T) {
	srv, req := fakeAPI(t, http.StatusOK, `{"sent":false}`)
	out, err := run(t, srv, "dtmf", "5")
	if err != nil {
		t.Fatal(err)
	}
	if req.body["digit"] != "5" || !strings.Contains(out, "not sent") {
		t.Errorf("body=%v out=%q", req.body, out)
	}
}

func TestConflictSurfacesKind(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusConflict, `{"error":"call state: INVALID_STATE: no ringing call to accept","kind":"INVALID_STATE"}`)
	_, err := run(t, srv, "accept")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Kind != "INVALID_STATE" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestHistoryQuery(t *testing.T) {
	srv, req := fakeAPI(t, http.StatusOK, `[{"phone":"p1","address":"5551234","direction":"MO","cause":"NORMAL","duration_sec":12}]`)
	out, err := run(t, srv, "history", "--phone", "p1", "--limit", "5")
	if err != nil {
		t.Fatal(err)
	}
	if req.method != http.MethodGet || req.query != "limit=5&phone=p1" {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(out, "5551234") || !strings.Contains(out, "NORMAL") {
		t.Errorf("output = %q", out)
	}
}

func TestPostDialValidatesID(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `{}`)
	if _, err := run(t, srv, "postdial", "p1", "x", "proceed"); err == nil {
		t.Fatal("non-numeric connection id accepted")
	}
}
