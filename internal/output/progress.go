package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/crankping/internal/metrics"
)

// ProgressReporter rewrites a single status line at a fixed interval. It
// replaces per-record output in quiet mode.
type ProgressReporter struct {
	collector  *metrics.Collector
	dispatched func() int64
	ticker     *time.Ticker
	done       chan struct{}
	finished   chan struct{}
	writer     io.Writer
	active     int32
	start      time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. dispatched may be nil.
func NewProgressReporter(collector *metrics.Collector, dispatched func() int64, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		collector:  collector,
		dispatched: dispatched,
		ticker:     time.NewTicker(interval),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
		writer:     writer,
		start:      time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	stats := p.collector.Stats(elapsed)
	line := fmt.Sprintf("Requests: %d | Success: %d | Fail: %d | Error: %d | RPS: %.1f | P99: %.1fms",
		stats.Total, stats.Successes, stats.Failures, stats.Errors, stats.RequestsPerSec, stats.P99LatencyMs)
	if p.dispatched != nil {
		if inFlight := p.dispatched() - stats.Total; inFlight > 0 {
			line += fmt.Sprintf(" | In flight: %d", inFlight)
		}
	}
	return line
}
