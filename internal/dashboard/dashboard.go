package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/crankping/internal/metrics"
	"github.com/torosent/crankping/internal/procstats"
	"github.com/torosent/crankping/internal/result"
)

const (
	maxRecentRows     = 50
	maxStatusRows     = 10
	maxIdentifierRows = 12
	refreshInterval   = 500 * time.Millisecond
)

// RunConfig holds run parameters for display.
type RunConfig struct {
	RunID       string
	TargetURL   string
	Workers     int
	Identifiers int
	Rounds      int64         // 0 = until stopped
	Duration    time.Duration // 0 = until stopped
	Timeout     time.Duration
	ConfigFile  string
}

// Dashboard renders a live terminal UI for a ping run. It implements
// result.Sink so the pump feeds it the recent results list.
type Dashboard struct {
	collector    *metrics.Collector
	sampler      *procstats.Sampler
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex
	stopOnce     sync.Once

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	successGauge   *widgets.Gauge
	metricsPara    *widgets.Paragraph
	latencySparkle *widgets.SparklineGroup
	recentList     *widgets.List
	statusList     *widgets.List
	identifierList *widgets.List
	processPara    *widgets.Paragraph

	recent    []string
	startTime time.Time
	cfg       RunConfig
}

// New initializes the terminal and builds the dashboard. shutdownFunc is
// called when the user presses q or Ctrl-C.
func New(collector *metrics.Collector, sampler *procstats.Sampler, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(collector, sampler, cfg, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(collector *metrics.Collector, sampler *procstats.Sampler, cfg RunConfig, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:    collector,
		sampler:      sampler,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		recent:       make([]string, 0, maxRecentRows),
		startTime:    time.Now(),
		cfg:          cfg,
	}
	d.initWidgets()
	return d
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.successGauge = widgets.NewGauge()
	d.successGauge.Title = "Success Rate"
	d.successGauge.BarColor = ui.ColorGreen
	d.successGauge.BorderStyle.Fg = ui.ColorCyan
	d.successGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Totals"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "P50 latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.recentList = widgets.NewList()
	d.recentList.Title = "Recent Results"
	d.recentList.Rows = []string{"Awaiting first round"}
	d.recentList.BorderStyle.Fg = ui.ColorCyan

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Buckets"
	d.statusList.Rows = []string{"No results yet"}
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.identifierList = widgets.NewList()
	d.identifierList.Title = "RefIDs"
	d.identifierList.Rows = []string{"Awaiting data"}
	d.identifierList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.identifierList.BorderStyle.Fg = ui.ColorCyan

	d.processPara = widgets.NewParagraph()
	d.processPara.Title = "Driver Process"
	d.processPara.Text = "n/a"
	d.processPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(0.7, d.summaryPara),
			ui.NewCol(0.3, d.processPara),
		),
		ui.NewRow(0.22,
			ui.NewCol(0.3, d.successGauge),
			ui.NewCol(0.3, d.metricsPara),
			ui.NewCol(0.4, d.latencySparkle),
		),
		ui.NewRow(0.64,
			ui.NewCol(0.55, d.recentList),
			ui.NewCol(0.45,
				ui.NewRow(0.4, d.statusList),
				ui.NewRow(0.6, d.identifierList),
			),
		),
	)
}

// Handle adds rec to the recent results list.
func (d *Dashboard) Handle(rec result.Record) {
	row := formatRecentRow(rec)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent = append([]string{row}, d.recent...)
	if len(d.recent) > maxRecentRows {
		d.recent = d.recent[:maxRecentRows]
	}
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
		ui.Close()
		// Give terminal time to restore
		time.Sleep(100 * time.Millisecond)
	})
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() ends the loop once the current round drains.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.collector.Snapshot()
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Completed: %d | [q] stop after current round",
		d.cfg.TargetURL,
		d.formatRunParams(),
		elapsed.Round(time.Second),
		stats.Total,
	)

	rate := stats.SuccessRate * 100
	d.successGauge.Percent = int(rate)
	d.successGauge.Label = fmt.Sprintf("%.1f%% (%d/%d)", rate, stats.Successes, stats.Total)
	switch {
	case stats.Total == 0 || rate >= 95:
		d.successGauge.BarColor = ui.ColorGreen
	case rate >= 50:
		d.successGauge.BarColor = ui.ColorYellow
	default:
		d.successGauge.BarColor = ui.ColorRed
	}

	d.metricsPara.Text = fmt.Sprintf(
		"Success: %d\nFail:    %d\nError:   %d\nRPS:     %.2f\nP50/P90/P99: %.1f / %.1f / %.1f ms",
		stats.Successes,
		stats.Failures,
		stats.Errors,
		stats.RequestsPerSec,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
	)

	if series := latencySeries(d.collector.History()); len(series) > 0 {
		d.latencySparkle.Sparklines[0].Data = series
		d.latencySparkle.Title = fmt.Sprintf("Latency | P50 now %.1fms | Max %.1fms", series[len(series)-1], stats.MaxLatencyMs)
	}

	if len(d.recent) > 0 {
		d.recentList.Rows = append([]string(nil), d.recent...)
	}
	d.statusList.Rows = formatStatusListRows(stats.StatusBuckets)
	d.identifierList.Rows = formatIdentifierRows(stats)

	if d.sampler != nil {
		d.processPara.Text = formatProcess(d.sampler.Last())
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func latencySeries(history []metrics.DataPoint) []float64 {
	if len(history) == 0 {
		return nil
	}
	series := make([]float64, len(history))
	for i, point := range history {
		series[i] = point.P50LatencyMs
	}
	return series
}

func outcomeColor(outcome result.Outcome) string {
	switch outcome {
	case result.OutcomeSuccess:
		return "green"
	case result.OutcomeFail:
		return "red"
	default:
		return "magenta"
	}
}

func formatRecentRow(rec result.Record) string {
	detail := ""
	switch rec.Outcome {
	case result.OutcomeError:
		detail = rec.ErrorKind
		if detail == "" {
			detail = "ERROR"
		}
	default:
		detail = fmt.Sprintf("%d", rec.StatusCode)
	}
	return fmt.Sprintf("[#%d s%d %s... %s %s](fg:%s) %.0fms",
		rec.RequestNumber,
		rec.Slot,
		escapeStyle(rec.IdentifierPrefix),
		rec.Outcome,
		detail,
		outcomeColor(rec.Outcome),
		rec.LatencyMs,
	)
}

// escapeStyle keeps identifier text from being parsed as termui style markup.
func escapeStyle(s string) string {
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}

func formatStatusListRows(buckets map[string]map[string]int) []string {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		return []string{"[No results yet](fg:green)"}
	}
	if len(rows) > maxStatusRows {
		rows = rows[:maxStatusRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s %s](fg:%s) %d  %s",
			row.Outcome, row.Code, outcomeColor(result.Outcome(row.Outcome)), row.Count, metrics.FriendlyErrorName(row.Code)))
	}
	return formatted
}

func formatIdentifierRows(stats metrics.Stats) []string {
	if len(stats.Identifiers) == 0 {
		return []string{"Awaiting data"}
	}
	rows := stats.Identifiers
	if len(rows) > maxIdentifierRows {
		rows = rows[:maxIdentifierRows]
	}
	formatted := make([]string, 0, len(rows)+1)
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("%s... | %d ok / %d fail / %d err | P99 %.1fms | [%s](fg:%s)",
			escapeStyle(row.Prefix), row.Successes, row.Failures, row.Errors, row.P99LatencyMs,
			row.LastOutcome, outcomeColor(row.LastOutcome)))
	}
	if extra := len(stats.Identifiers) - len(rows); extra > 0 {
		formatted = append(formatted, fmt.Sprintf("... %d more", extra))
	}
	return formatted
}

func formatProcess(s procstats.Sample) string {
	if s.At.IsZero() {
		return "n/a"
	}
	return fmt.Sprintf("CPU: %.1f%%\nRSS: %.1f MiB\nGoroutines: %d", s.CPUPercent, s.RSSMiB, s.Goroutines)
}

func (d *Dashboard) formatRunParams() string {
	var parts []string

	if d.cfg.RunID != "" {
		parts = append(parts, fmt.Sprintf("Run: %s", d.cfg.RunID))
	}
	parts = append(parts, fmt.Sprintf("Workers: %d", d.cfg.Workers))
	parts = append(parts, fmt.Sprintf("RefIDs: %d", d.cfg.Identifiers))

	if d.cfg.Rounds > 0 {
		parts = append(parts, fmt.Sprintf("Rounds: %d", d.cfg.Rounds))
	}
	if d.cfg.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.cfg.Duration))
	}
	if d.cfg.Rounds == 0 && d.cfg.Duration == 0 {
		parts = append(parts, "Until stopped")
	}
	if d.cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.cfg.Timeout))
	}
	if d.cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
