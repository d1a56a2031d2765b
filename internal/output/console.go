package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/torosent/crankping/internal/result"
)

// Console prints every record the way an operator watches a ping run:
// green for SUCCESS, red for FAIL and ERROR. It implements result.Sink.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	positive lipgloss.Style
	negative lipgloss.Style
	title    lipgloss.Style
	note     lipgloss.Style
}

// NewConsole renders to w. Colors are dropped automatically when w is not a
// terminal.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = io.Discard
	}
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:        w,
		positive: r.NewStyle().Foreground(lipgloss.Color("10")),
		negative: r.NewStyle().Foreground(lipgloss.Color("9")),
		title:    r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		note:     r.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

// Handle prints rec's message.
func (c *Console) Handle(rec result.Record) {
	style := c.negative
	if rec.Severity == result.SeverityPositive && !rec.Failed() {
		style = c.positive
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printLines(style, rec.Message())
}

// Banner announces the run.
func (c *Console) Banner(info RunInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printLines(c.title, "--- Concurrent Request Script ---")
	c.printLines(c.note, fmt.Sprintf("Using %d workers and %d refids. %s", info.Workers, info.Identifiers, info.limitText()))
	if info.Target != "" {
		c.printLines(c.note, "Target: "+info.Target)
	}
	if info.RunID != "" {
		c.printLines(c.note, "Run ID: "+info.RunID)
	}
	fmt.Fprintln(c.w)
}

// Stopped prints the closing line with the number of requests dispatched.
func (c *Console) Stopped(reason string, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reason == "" {
		reason = "Script stopped"
	}
	fmt.Fprintln(c.w)
	c.printLines(c.negative, fmt.Sprintf("%s. Total requests initiated: %d", reason, total))
}

// lipgloss pads multi-line blocks to a common width, so style line by line.
func (c *Console) printLines(style lipgloss.Style, text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintln(c.w, style.Render(line))
	}
}

// RunInfo describes a run for banners and reports.
type RunInfo struct {
	RunID       string
	Target      string
	Workers     int
	Identifiers int
	Rounds      int64
	Duration    string
}

func (i RunInfo) limitText() string {
	switch {
	case i.Rounds > 0 && i.Duration != "":
		return fmt.Sprintf("Running %d rounds or %s, whichever comes first...", i.Rounds, i.Duration)
	case i.Rounds > 0:
		return fmt.Sprintf("Running %d rounds...", i.Rounds)
	case i.Duration != "":
		return fmt.Sprintf("Running for %s...", i.Duration)
	default:
		return "Running indefinitely..."
	}
}
