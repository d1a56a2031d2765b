package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/torosent/crankping/internal/config"
	"github.com/torosent/crankping/internal/payload"
)

func testRequest() payload.Request {
	return payload.Request{
		Identifier:      "REF-123456789",
		TimestampMillis: 1700000000123,
		Nonce:           "0a1b2c3d4e5f",
		UserAgent:       "test-agent/1.0",
	}
}

func TestBuildRequestWithHeaders(t *testing.T) {
	cfg := &config.Config{
		TargetURL: "http://example.com/api/ping",
		Headers: map[string]string{
			"x-trace-id": "12345",
			"User-Agent": "overridden",
		},
	}

	builder, err := NewRequestBuilder(cfg)
	if err != nil {
		t.Fatalf("expected builder, got error: %v", err)
	}
	if builder.Target() != cfg.TargetURL {
		t.Fatalf("Target() = %q", builder.Target())
	}

	req, err := builder.Build(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("expected request, got error: %v", err)
	}

	if req.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %s", req.Method)
	}
	if req.URL.String() != cfg.TargetURL {
		t.Fatalf("expected URL %s, got %s", cfg.TargetURL, req.URL.String())
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected JSON Content-Type, got %q", req.Header.Get("Content-Type"))
	}
	if req.Header.Get("Accept") != "application/json" {
		t.Fatalf("expected JSON Accept, got %q", req.Header.Get("Accept"))
	}
	if req.Header.Get("X-Trace-Id") != "12345" {
		t.Fatalf("expected X-Trace-Id header, got %q", req.Header.Get("X-Trace-Id"))
	}
	if req.Header.Get("User-Agent") != "test-agent/1.0" {
		t.Fatalf("expected chosen User-Agent to win, got %q", req.Header.Get("User-Agent"))
	}

	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if len(body) != 3 {
		t.Fatalf("expected exactly 3 body fields, got %v", body)
	}
	if body["refid"] != "REF-123456789" || body["nonce"] != "0a1b2c3d4e5f" {
		t.Fatalf("unexpected body %v", body)
	}
	if ts, ok := body["timestamp"].(float64); !ok || int64(ts) != 1700000000123 {
		t.Fatalf("unexpected timestamp %v", body["timestamp"])
	}

	if req.GetBody == nil {
		t.Fatalf("expected request to support body replay")
	}
	replay, err := req.GetBody()
	if err != nil {
		t.Fatalf("GetBody error = %v", err)
	}
	replayBytes, _ := io.ReadAll(replay)
	if string(replayBytes) != string(bodyBytes) {
		t.Fatalf("replay body %q != %q", replayBytes, bodyBytes)
	}
}

func TestNewRequestBuilderErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{"nil config", nil},
		{"empty target", &config.Config{TargetURL: "   "}},
		{"empty header key", &config.Config{TargetURL: "http://example.com", Headers: map[string]string{"": "v"}}},
		{"header key with newline", &config.Config{TargetURL: "http://example.com", Headers: map[string]string{"Bad\nKey": "v"}}},
		{"header value with newline", &config.Config{TargetURL: "http://example.com", Headers: map[string]string{"X-Test": "a\r\nb"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRequestBuilder(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRequestBuilder_EmptyHeaderValueAllowed(t *testing.T) {
	builder, err := NewRequestBuilder(&config.Config{
		TargetURL: "http://example.com",
		Headers:   map[string]string{"X-Empty": ""},
	})
	if err != nil {
		t.Fatalf("NewRequestBuilder error = %v", err)
	}
	req, err := builder.Build(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Build error = %v", err)
	}
	if _, ok := req.Header["X-Empty"]; !ok {
		t.Fatal("expected X-Empty header to be present")
	}
}

func TestRequestBuilder_HeadersWithLongValues(t *testing.T) {
	long := strings.Repeat("a", 8192)
	builder, err := NewRequestBuilder(&config.Config{
		TargetURL: "http://example.com",
		Headers:   map[string]string{"X-Long": long},
	})
	if err != nil {
		t.Fatalf("NewRequestBuilder error = %v", err)
	}
	req, err := builder.Build(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Build error = %v", err)
	}
	if req.Header.Get("X-Long") != long {
		t.Fatal("long header value was not preserved")
	}
}

func TestNewClientSettings(t *testing.T) {
	client := NewClient(15*time.Second, 8)
	if client.Timeout != 15*time.Second {
		t.Fatalf("Timeout = %s, want 15s", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport %T", client.Transport)
	}
	if transport.MaxIdleConnsPerHost != 8 {
		t.Fatalf("MaxIdleConnsPerHost = %d, want 8", transport.MaxIdleConnsPerHost)
	}

	clamped := NewClient(-time.Second, 0)
	if clamped.Timeout != config.DefaultTimeout {
		t.Fatalf("negative timeout should fall back to %s, got %s", config.DefaultTimeout, clamped.Timeout)
	}
	if unbounded := NewClient(0, 1); unbounded.Timeout != config.DefaultTimeout {
		t.Fatalf("zero timeout should fall back to %s, got %s", config.DefaultTimeout, unbounded.Timeout)
	}
	if clamped.Transport.(*http.Transport).MaxIdleConnsPerHost != 1 {
		t.Fatal("workers should clamp to 1")
	}
}
