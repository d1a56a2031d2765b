package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func fixedRoll(v float64) func() float64 {
	return func() float64 { return v }
}

func post(t *testing.T, handler http.Handler, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ping", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"refid":"REF-1","timestamp":1700000000000,"nonce":"0a1b2c3d4e5f"}`

func TestHandlePing(t *testing.T) {
	tests := []struct {
		name        string
		behavior    behavior
		contentType string
		body        string
		wantStatus  int
		wantEmpty   bool
	}{
		{"success", behavior{roll: fixedRoll(0.5)}, "application/json", validBody, http.StatusOK, false},
		{"injected failure", behavior{failRate: 1, roll: fixedRoll(0.5)}, "application/json", validBody, http.StatusInternalServerError, false},
		{"empty created", behavior{emptyRate: 1, roll: fixedRoll(0.5)}, "application/json", validBody, http.StatusCreated, true},
		{"wrong content type", behavior{roll: fixedRoll(0.5)}, "text/plain", validBody, http.StatusUnsupportedMediaType, false},
		{"missing refid", behavior{roll: fixedRoll(0.5)}, "application/json", `{"nonce":"x"}`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &target{behavior: tt.behavior}
			rec := post(t, target.mux(), tt.contentType, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantEmpty && rec.Body.Len() != 0 {
				t.Fatalf("expected empty body, got %q", rec.Body.String())
			}
		})
	}
}

func TestHandlePingEchoesIdentifier(t *testing.T) {
	target := &target{behavior: behavior{roll: fixedRoll(0.9)}}
	rec := post(t, target.mux(), "application/json", validBody)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["refid"] != "REF-1" || resp["nonce"] != "0a1b2c3d4e5f" {
		t.Errorf("response = %v", resp)
	}
	if target.served.Load() != 1 {
		t.Errorf("served = %d, want 1", target.served.Load())
	}
}

func TestHandlePingRejectsGet(t *testing.T) {
	target := &target{behavior: behavior{roll: fixedRoll(0.5)}}
	rec := httptest.NewRecorder()
	target.mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandlePingSlow(t *testing.T) {
	target := &target{behavior: behavior{slowRate: 1, slowDelay: 20 * time.Millisecond, roll: fixedRoll(0.5)}}
	start := time.Now()
	rec := post(t, target.mux(), "application/json", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("expected slow response")
	}
}
