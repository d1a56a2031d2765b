package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/torosent/crankping/internal/metrics"
	"github.com/torosent/crankping/internal/threshold"
)

// maxIdentifierRows bounds the per-identifier section of the text report.
const maxIdentifierRows = 20

// Report is the end-of-run summary.
type Report struct {
	RunID      string        `json:"run_id"`
	Target     string        `json:"target"`
	Workers    int           `json:"workers"`
	Rounds     int64         `json:"rounds"`
	Dispatched int64         `json:"dispatched"`
	Stats      metrics.Stats `json:"stats"`

	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report Report) {
	stats := report.Stats
	fmt.Fprintln(w, "\n--- Ping Results ---")
	if report.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", report.RunID)
	}
	fmt.Fprintf(w, "Rounds:            %d\n", report.Rounds)
	fmt.Fprintf(w, "Total requests initiated: %d\n", report.Dispatched)
	fmt.Fprintf(w, "Completed:         %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d (%.1f%%)\n", stats.Successes, stats.SuccessRate*100)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Errors:            %d\n", stats.Errors)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	if len(stats.StatusBuckets) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, stats.StatusBuckets, "  ")
	}

	if len(stats.Identifiers) > 0 {
		fmt.Fprintln(w, "\nRefID Breakdown:")
		for i, row := range stats.Identifiers {
			if i == maxIdentifierRows {
				fmt.Fprintf(w, "  ... %d more\n", len(stats.Identifiers)-maxIdentifierRows)
				break
			}
			share := 0.0
			if stats.Total > 0 {
				share = (float64(row.Total) / float64(stats.Total)) * 100
			}
			fmt.Fprintf(
				w,
				"  - %s...: total=%d (%.1f%%), successes=%d, failures=%d, errors=%d, p99=%.1fms, last=%s\n",
				row.Prefix,
				row.Total,
				share,
				row.Successes,
				row.Failures,
				row.Errors,
				row.P99LatencyMs,
				row.LastOutcome,
			)
		}
	}

	if len(report.Thresholds) > 0 {
		failed := threshold.Failed(report.Thresholds)
		fmt.Fprintf(w, "\nThresholds: %d/%d passed\n", len(report.Thresholds)-failed, len(report.Thresholds))
		for _, r := range report.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func writeStatusBuckets(w io.Writer, buckets map[string]map[string]int, indent string) {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(
			w,
			"%s%s %s: %d (%s)\n",
			indent,
			row.Outcome,
			row.Code,
			row.Count,
			metrics.FriendlyErrorName(row.Code),
		)
	}
}
