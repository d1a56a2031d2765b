package metrics

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/crankping/internal/result"
)

// historyLimit caps the snapshots kept for charting.
const historyLimit = 120

// Collector aggregates result records in a thread-safe manner. It implements
// result.Sink.
type Collector struct {
	mu          sync.Mutex
	hist        *hdrhistogram.Histogram
	successes   int64
	failures    int64
	errors      int64
	minLatency  time.Duration
	maxLatency  time.Duration
	sumLatency  time.Duration
	buckets     map[result.Outcome]map[string]int64
	identifiers map[string]*identifierTally
	history     []DataPoint
	start       time.Time
	now         func() time.Time
}

type identifierTally struct {
	prefix    string
	hist      *hdrhistogram.Histogram
	successes int64
	failures  int64
	errors    int64
	last      result.Outcome
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	Errors         int64         `json:"errors"`
	SuccessRate    float64       `json:"success_rate"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms"`

	StatusBuckets map[string]map[string]int `json:"status_buckets,omitempty"`
	Identifiers   []IdentifierStats         `json:"identifiers,omitempty"`
}

// IdentifierStats is the per-identifier breakdown. Rows are kept per full
// identifier; only the prefix is shown, so two rows may share a Prefix.
type IdentifierStats struct {
	identifier   string
	Prefix       string         `json:"refid_prefix"`
	Total        int64          `json:"total"`
	Successes    int64          `json:"successes"`
	Failures     int64          `json:"failures"`
	Errors       int64          `json:"errors"`
	P50LatencyMs float64        `json:"p50_latency_ms"`
	P99LatencyMs float64        `json:"p99_latency_ms"`
	LastOutcome  result.Outcome `json:"last_outcome"`
}

// DataPoint is one entry of the time series kept by Snapshot.
type DataPoint struct {
	Timestamp      time.Time
	Total          int64
	Successes      int64
	Failures       int64
	Errors         int64
	P50LatencyMs   float64
	RequestsPerSec float64
}

func NewCollector() *Collector {
	return &Collector{
		hist:        newHistogram(),
		buckets:     make(map[result.Outcome]map[string]int64),
		identifiers: make(map[string]*identifierTally),
		start:       time.Now(),
		now:         time.Now,
	}
}

// Track latencies from 1µs up to 60s with 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 60_000_000, 3)
}

func recordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// Start resets the clock used for request rates.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = c.now()
	c.mu.Unlock()
}

// Handle records one result.
func (c *Collector) Handle(rec result.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recordLatency(c.hist, rec.Latency)
	c.sumLatency += rec.Latency
	if rec.Latency > 0 && (c.minLatency == 0 || rec.Latency < c.minLatency) {
		c.minLatency = rec.Latency
	}
	if rec.Latency > c.maxLatency {
		c.maxLatency = rec.Latency
	}

	outcome := rec.Outcome
	if outcome == "" {
		outcome = result.OutcomeError
	}
	switch outcome {
	case result.OutcomeSuccess:
		c.successes++
	case result.OutcomeFail:
		c.failures++
	default:
		c.errors++
	}

	codes := c.buckets[outcome]
	if codes == nil {
		codes = make(map[string]int64)
		c.buckets[outcome] = codes
	}
	codes[BucketCode(rec)]++

	prefix := rec.IdentifierPrefix
	if prefix == "" {
		prefix = result.Prefix(rec.Identifier)
	}
	key := rec.Identifier
	if key == "" {
		key = prefix
	}
	tally := c.identifiers[key]
	if tally == nil {
		tally = &identifierTally{prefix: prefix, hist: newHistogram()}
		c.identifiers[key] = tally
	}
	recordLatency(tally.hist, rec.Latency)
	switch outcome {
	case result.OutcomeSuccess:
		tally.successes++
	case result.OutcomeFail:
		tally.failures++
	default:
		tally.errors++
	}
	tally.last = outcome
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked(elapsed)
}

func (c *Collector) statsLocked(elapsed time.Duration) Stats {
	total := c.successes + c.failures + c.errors
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		Errors:     c.errors,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
		stats.SuccessRate = float64(c.successes) / float64(total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.buckets) > 0 {
		stats.StatusBuckets = make(map[string]map[string]int, len(c.buckets))
		for outcome, codes := range c.buckets {
			out := make(map[string]int, len(codes))
			for code, count := range codes {
				out[code] = int(count)
			}
			stats.StatusBuckets[string(outcome)] = out
		}
	}

	if len(c.identifiers) > 0 {
		stats.Identifiers = make([]IdentifierStats, 0, len(c.identifiers))
		for key, tally := range c.identifiers {
			row := IdentifierStats{
				identifier:  key,
				Prefix:      tally.prefix,
				Total:       tally.successes + tally.failures + tally.errors,
				Successes:   tally.successes,
				Failures:    tally.failures,
				Errors:      tally.errors,
				LastOutcome: tally.last,
			}
			if tally.hist.TotalCount() > 0 {
				row.P50LatencyMs = toMillis(time.Duration(tally.hist.ValueAtQuantile(50)) * time.Microsecond)
				row.P99LatencyMs = toMillis(time.Duration(tally.hist.ValueAtQuantile(99)) * time.Microsecond)
			}
			stats.Identifiers = append(stats.Identifiers, row)
		}
		sort.Slice(stats.Identifiers, func(i, j int) bool {
			a, b := stats.Identifiers[i], stats.Identifiers[j]
			if a.Total == b.Total {
				return a.identifier < b.identifier
			}
			return a.Total > b.Total
		})
	}

	return stats
}

// Snapshot appends the current totals to the history and returns them.
func (c *Collector) Snapshot() DataPoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := c.statsLocked(now.Sub(c.start))
	point := DataPoint{
		Timestamp:      now,
		Total:          stats.Total,
		Successes:      stats.Successes,
		Failures:       stats.Failures,
		Errors:         stats.Errors,
		P50LatencyMs:   stats.P50LatencyMs,
		RequestsPerSec: stats.RequestsPerSec,
	}
	c.history = append(c.history, point)
	if len(c.history) > historyLimit {
		c.history = append([]DataPoint(nil), c.history[len(c.history)-historyLimit:]...)
	}
	return point
}

// History returns a copy of the snapshots, oldest first.
func (c *Collector) History() []DataPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DataPoint(nil), c.history...)
}

// BucketCode is the status bucket key for rec: the HTTP status code for
// answered requests, the error kind otherwise.
func BucketCode(rec result.Record) string {
	if rec.StatusCode > 0 {
		return strconv.Itoa(rec.StatusCode)
	}
	if rec.ErrorKind != "" {
		return rec.ErrorKind
	}
	return "UNKNOWN"
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
