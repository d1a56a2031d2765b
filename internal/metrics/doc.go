// Package metrics aggregates ping results for reports and the dashboard.
//
// # Collector
//
// [Collector] is a result.Sink; the pump hands it every record:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//	result.Pump(stream.Records(), collector, console)
//	stats := collector.Stats(elapsed)
//
// It counts SUCCESS, FAIL and ERROR outcomes, keeps an HDR latency histogram
// (1µs to 60s, 3 significant figures), buckets records by outcome and status
// code (or error kind for ERROR records) and keeps a per-identifier breakdown
// keyed by the identifier prefix.
//
// # Time series
//
// [Collector.Snapshot] appends the current totals to a bounded history that
// the dashboard charts via [Collector.History].
package metrics
