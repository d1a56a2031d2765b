package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/crankping/internal/result"
	"github.com/torosent/crankping/internal/runner"
	"github.com/torosent/crankping/internal/tracing"
)

const maxBodyReadSize = 1024 * 1024

// Transport error kinds attached to ERROR records.
const (
	KindTimeout           = "TIMEOUT"
	KindDNS               = "DNS"
	KindConnectionRefused = "CONNECTION_REFUSED"
	KindConnectionReset   = "CONNECTION_RESET"
	KindTLS               = "TLS"
	KindTransport         = "TRANSPORT"
	KindBuild             = "BUILD"
)

// StatusError describes a reachable endpoint answering with a non-success status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Worker executes one job as a single POST and classifies the outcome.
// It implements runner.Executor.
type Worker struct {
	client    *http.Client
	builder   *RequestBuilder
	tracer    trace.Tracer
	propagate bool
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithTracing records a client span per request and, when the provider asks
// for it, injects W3C trace headers.
func WithTracing(p *tracing.Provider) WorkerOption {
	return func(w *Worker) {
		if p == nil {
			return
		}
		w.tracer = p.Tracer()
		w.propagate = p.ShouldPropagate()
	}
}

func NewWorker(client *http.Client, builder *RequestBuilder, opts ...WorkerOption) *Worker {
	if client == nil {
		client = NewClient(DefaultTimeout, 1)
	}
	w := &Worker{
		client:  client,
		builder: builder,
		tracer:  noop.NewTracerProvider().Tracer("crankping"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ runner.Executor = (*Worker)(nil)

// Execute performs exactly one POST for job and returns its record. It never
// panics on transport failures; those become ERROR records.
func (w *Worker) Execute(ctx context.Context, job runner.Job) result.Record {
	if ctx == nil {
		ctx = context.Background()
	}

	rec := runner.NewRecord(job)
	start := time.Now()
	ctx, span := tracing.StartRequestSpan(ctx, w.tracer, "http", rec.IdentifierPrefix)
	span.SetAttributes(
		attribute.Int64("crankping.request", job.Number),
		attribute.Int("crankping.slot", job.Slot),
	)

	req, err := w.builder.Build(ctx, job.Request)
	if err != nil {
		rec = runner.ErrorRecord(job, fmt.Errorf("build request: %w", err), KindBuild)
		tracing.EndSpan(span, err)
		return rec
	}
	if w.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		rec = transportRecord(job, err, time.Since(start))
		tracing.EndSpan(span, err)
		return rec
	}
	defer resp.Body.Close()

	// Body reads count as part of the attempt; a broken body is a transport error.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	if err != nil {
		rec = transportRecord(job, fmt.Errorf("read response body: %w", err), time.Since(start))
		tracing.EndSpan(span, err, attribute.Int("http.response.status_code", resp.StatusCode))
		return rec
	}

	rec.Latency = time.Since(start)
	rec.LatencyMs = float64(rec.Latency) / float64(time.Millisecond)
	rec.StatusCode = resp.StatusCode
	rec.Body = string(body)
	if len(body) == 0 {
		rec.Body = result.EmptyBody
	}

	var spanErr error
	if IsSuccessStatus(resp.StatusCode) {
		rec.Outcome = result.OutcomeSuccess
	} else {
		rec.Outcome = result.OutcomeFail
		spanErr = &StatusError{StatusCode: resp.StatusCode}
	}
	rec.Severity = result.SeverityFor(rec.Outcome)
	tracing.EndSpan(span, spanErr, attribute.Int("http.response.status_code", resp.StatusCode))
	return rec
}

// IsSuccessStatus reports whether code counts as SUCCESS (200 or 201).
func IsSuccessStatus(code int) bool {
	return code == http.StatusOK || code == http.StatusCreated
}

func transportRecord(job runner.Job, err error, latency time.Duration) result.Record {
	rec := runner.ErrorRecord(job, err, TransportErrorKind(err))
	rec.Latency = latency
	rec.LatencyMs = float64(latency) / float64(time.Millisecond)
	return rec
}

// TransportErrorKind buckets a transport failure.
func TransportErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindConnectionReset
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) || errors.As(err, &authorityErr) || errors.As(err, &hostnameErr) {
		return KindTLS
	}

	return KindTransport
}
