package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/crankping/internal/metrics"
	"github.com/torosent/crankping/internal/result"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressLine(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Handle(result.Record{Outcome: result.OutcomeSuccess, StatusCode: 200, Latency: 30 * time.Millisecond})
	collector.Handle(result.Record{Outcome: result.OutcomeFail, StatusCode: 404, Latency: 10 * time.Millisecond})
	collector.Handle(result.Record{Outcome: result.OutcomeError, ErrorKind: "DNS"})

	reporter := NewProgressReporter(collector, func() int64 { return 5 }, time.Second, nil)
	line := reporter.line(time.Second)
	for _, want := range []string{"Requests: 3", "Success: 1", "Fail: 1", "Error: 1", "RPS: 3.0", "In flight: 2"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestProgressReporterWritesAndStops(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Handle(result.Record{Outcome: result.OutcomeSuccess, StatusCode: 200})

	var buf lockedBuffer
	reporter := NewProgressReporter(collector, nil, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()
	time.Sleep(80 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	if !strings.Contains(buf.String(), "\rRequests: 1") {
		t.Errorf("expected progress output, got %q", buf.String())
	}
}
