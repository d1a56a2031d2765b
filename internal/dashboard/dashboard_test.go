package dashboard

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/torosent/crankping/internal/metrics"
	"github.com/torosent/crankping/internal/procstats"
	"github.com/torosent/crankping/internal/result"
)

func TestFormatStatusListRows(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		rows := formatStatusListRows(nil)
		if len(rows) != 1 || !strings.Contains(rows[0], "No results yet") {
			t.Fatalf("unexpected rows: %v", rows)
		}
	})

	t.Run("sorted with friendly names", func(t *testing.T) {
		rows := formatStatusListRows(map[string]map[string]int{
			"SUCCESS": {"200": 4},
			"ERROR":   {"TIMEOUT": 7},
			"FAIL":    {"503": 1},
		})
		if len(rows) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(rows))
		}
		if !strings.Contains(rows[0], "ERROR TIMEOUT") || !strings.Contains(rows[0], "Request timed out") {
			t.Errorf("first row = %q", rows[0])
		}
		if !strings.Contains(rows[0], "fg:magenta") {
			t.Errorf("expected ERROR row colored magenta, got %q", rows[0])
		}
		if !strings.Contains(rows[2], "HTTP 503") || !strings.Contains(rows[2], "fg:red") {
			t.Errorf("last row = %q", rows[2])
		}
	})

	t.Run("capped", func(t *testing.T) {
		buckets := map[string]map[string]int{"FAIL": {}}
		for code := 400; code < 420; code++ {
			buckets["FAIL"][fmt.Sprint(code)] = code
		}
		if rows := formatStatusListRows(buckets); len(rows) != maxStatusRows {
			t.Errorf("expected %d rows, got %d", maxStatusRows, len(rows))
		}
	})
}

func TestFormatIdentifierRows(t *testing.T) {
	if rows := formatIdentifierRows(metrics.Stats{}); len(rows) != 1 || rows[0] != "Awaiting data" {
		t.Fatalf("unexpected empty rows: %v", rows)
	}

	stats := metrics.Stats{}
	for i := 0; i < maxIdentifierRows+3; i++ {
		stats.Identifiers = append(stats.Identifiers, metrics.IdentifierStats{
			Prefix:      fmt.Sprintf("ref-%06d", i),
			Total:       int64(2),
			Successes:   1,
			Failures:    1,
			LastOutcome: result.OutcomeFail,
		})
	}
	rows := formatIdentifierRows(stats)
	if len(rows) != maxIdentifierRows+1 {
		t.Fatalf("expected %d rows, got %d", maxIdentifierRows+1, len(rows))
	}
	if !strings.HasPrefix(rows[0], "ref-000000... | 1 ok / 1 fail / 0 err") {
		t.Errorf("first row = %q", rows[0])
	}
	if rows[len(rows)-1] != "... 3 more" {
		t.Errorf("last row = %q", rows[len(rows)-1])
	}
}

func TestFormatRecentRow(t *testing.T) {
	tests := []struct {
		name string
		rec  result.Record
		want string
	}{
		{
			name: "success",
			rec:  result.Record{RequestNumber: 12, Slot: 3, IdentifierPrefix: "abcdefghij", Outcome: result.OutcomeSuccess, StatusCode: 201, LatencyMs: 42.4},
			want: "[#12 s3 abcdefghij... SUCCESS 201](fg:green) 42ms",
		},
		{
			name: "error with kind",
			rec:  result.Record{RequestNumber: 1, Slot: 0, IdentifierPrefix: "x", Outcome: result.OutcomeError, ErrorKind: "TIMEOUT", LatencyMs: 15000},
			want: "[#1 s0 x... ERROR TIMEOUT](fg:magenta) 15000ms",
		},
		{
			name: "error without kind",
			rec:  result.Record{RequestNumber: 2, IdentifierPrefix: "y", Outcome: result.OutcomeError},
			want: "[#2 s0 y... ERROR ERROR](fg:magenta) 0ms",
		},
		{
			name: "markup in identifier",
			rec:  result.Record{RequestNumber: 3, IdentifierPrefix: "[a](b)", Outcome: result.OutcomeFail, StatusCode: 500},
			want: "[#3 s0 (a)(b)... FAIL 500](fg:red) 0ms",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatRecentRow(tt.rec); got != tt.want {
				t.Errorf("formatRecentRow() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleKeepsNewestFirstAndBounded(t *testing.T) {
	d := newDashboard(metrics.NewCollector(), nil, RunConfig{}, nil)
	defer d.cancel()

	for i := 1; i <= maxRecentRows+5; i++ {
		d.Handle(result.Record{RequestNumber: int64(i), IdentifierPrefix: "r", Outcome: result.OutcomeSuccess, StatusCode: 200})
	}
	if len(d.recent) != maxRecentRows {
		t.Fatalf("recent len = %d, want %d", len(d.recent), maxRecentRows)
	}
	if !strings.HasPrefix(d.recent[0], fmt.Sprintf("[#%d ", maxRecentRows+5)) {
		t.Errorf("newest row = %q", d.recent[0])
	}
}

func TestUpdatePopulatesWidgets(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()
	d := newDashboard(collector, nil, RunConfig{RunID: "01RUN", TargetURL: "http://example.test/ping", Workers: 4, Identifiers: 2}, nil)
	defer d.cancel()

	recs := []result.Record{
		{RequestNumber: 1, Identifier: "alpha-0001", IdentifierPrefix: "alpha-0001", Outcome: result.OutcomeSuccess, StatusCode: 200, Latency: 10 * time.Millisecond, LatencyMs: 10},
		{RequestNumber: 2, Identifier: "beta-0002", IdentifierPrefix: "beta-0002", Outcome: result.OutcomeFail, StatusCode: 500, Latency: 20 * time.Millisecond, LatencyMs: 20},
	}
	for _, rec := range recs {
		collector.Handle(rec)
		d.Handle(rec)
	}
	collector.Snapshot()
	d.update()

	if !strings.Contains(d.summaryPara.Text, "http://example.test/ping") || !strings.Contains(d.summaryPara.Text, "Run: 01RUN") {
		t.Errorf("summary = %q", d.summaryPara.Text)
	}
	if !strings.Contains(d.summaryPara.Text, "Until stopped") {
		t.Errorf("expected unbounded run in summary, got %q", d.summaryPara.Text)
	}
	if d.successGauge.Percent != 50 {
		t.Errorf("gauge percent = %d, want 50", d.successGauge.Percent)
	}
	if len(d.recentList.Rows) != 2 || !strings.HasPrefix(d.recentList.Rows[0], "[#2 ") {
		t.Errorf("recent rows = %v", d.recentList.Rows)
	}
	if len(d.identifierList.Rows) != 2 {
		t.Errorf("identifier rows = %v", d.identifierList.Rows)
	}
	if len(d.latencySparkle.Sparklines[0].Data) != 1 {
		t.Errorf("sparkline data = %v", d.latencySparkle.Sparklines[0].Data)
	}
	if d.processPara.Text != "n/a" {
		t.Errorf("process text = %q, want n/a without sampler", d.processPara.Text)
	}
}

func TestFormatRunParams(t *testing.T) {
	d := &Dashboard{cfg: RunConfig{Workers: 10, Identifiers: 3, Rounds: 5, Duration: time.Minute, Timeout: 15 * time.Second, ConfigFile: "ping.yaml"}}
	got := d.formatRunParams()
	want := "Workers: 10 | RefIDs: 3 | Rounds: 5 | Duration: 1m0s | Timeout: 15s | Config: ping.yaml"
	if got != want {
		t.Errorf("formatRunParams() = %q, want %q", got, want)
	}
}

func TestFormatProcess(t *testing.T) {
	if got := formatProcess(procstats.Sample{}); got != "n/a" {
		t.Errorf("zero sample = %q", got)
	}
	got := formatProcess(procstats.Sample{At: time.Now(), CPUPercent: 12.5, RSSMiB: 30.25, Goroutines: 17})
	if got != "CPU: 12.5%\nRSS: 30.2 MiB\nGoroutines: 17" && got != "CPU: 12.5%\nRSS: 30.3 MiB\nGoroutines: 17" {
		t.Errorf("formatProcess() = %q", got)
	}
}
