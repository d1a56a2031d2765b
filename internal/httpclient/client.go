package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/crankping/internal/config"
	"github.com/torosent/crankping/internal/payload"
)

const (
	contentTypeJSON = "application/json"
	// DefaultTimeout bounds one attempt when no timeout is configured.
	DefaultTimeout = 15 * time.Second
)

// RequestBuilder turns a payload.Request into an *http.Request for the
// configured target.
type RequestBuilder struct {
	target  string
	headers http.Header
}

func NewRequestBuilder(cfg *config.Config) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target := strings.TrimSpace(cfg.TargetURL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if canonicalKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}

		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		target:  target,
		headers: headers,
	}, nil
}

// Target returns the endpoint URL requests are sent to.
func (b *RequestBuilder) Target() string {
	return b.target
}

// Build returns a POST carrying req's JSON body. The JSON content headers
// and the chosen User-Agent always override configured extra headers.
func (b *RequestBuilder) Build(ctx context.Context, req payload.Request) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	body, err := req.Body()
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header = make(http.Header, len(b.headers)+3)
	for key, values := range b.headers {
		for _, val := range values {
			httpReq.Header.Add(key, val)
		}
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", req.UserAgent)

	return httpReq, nil
}

// NewClient returns a client whose Timeout bounds each attempt end to end and
// whose idle pool keeps one connection per worker.
func NewClient(timeout time.Duration, workers int) *http.Client {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	if workers < 1 {
		workers = 1
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   workers,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
