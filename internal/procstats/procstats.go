// Package procstats samples the driver's own CPU and memory use so the
// dashboard and the metrics endpoint can show what a run costs locally.
package procstats

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const (
	KiB uint64 = 1024
	MiB uint64 = 1024 * KiB
)

func BytesToMiB(bytes uint64) float64 {
	return float64(bytes) / float64(MiB)
}

// Sample is one reading of the current process.
type Sample struct {
	At         time.Time
	CPUPercent float64
	CPUSeconds float64
	RSSMiB     float64
	Goroutines int
}

// Sampler reads process statistics. CPUPercent is measured between
// consecutive calls to Sample, so the first reading reports 0.
type Sampler struct {
	mu   sync.Mutex
	proc *process.Process
	last Sample
}

// New returns a sampler for the running process.
func New() (*Sampler, error) {
	return ForPID(int32(os.Getpid()))
}

// ForPID returns a sampler for pid.
func ForPID(pid int32) (*Sampler, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	return &Sampler{proc: proc}, nil
}

// Sample takes a new reading and remembers it for Last.
func (s *Sampler) Sample() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return s.last, fmt.Errorf("memory info: %w", err)
	}
	times, err := s.proc.Times()
	if err != nil {
		return s.last, fmt.Errorf("cpu times: %w", err)
	}
	percent, err := s.proc.Percent(0)
	if err != nil {
		return s.last, fmt.Errorf("cpu percent: %w", err)
	}

	s.last = Sample{
		At:         time.Now(),
		CPUPercent: percent,
		CPUSeconds: times.User + times.System,
		RSSMiB:     BytesToMiB(mem.RSS),
		Goroutines: runtime.NumGoroutine(),
	}
	return s.last, nil
}

// Run samples every interval until ctx is done. Errors keep the previous
// reading.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	_, _ = s.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Sample()
		}
	}
}

// Last returns the most recent reading without sampling.
func (s *Sampler) Last() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// String formats a sample for one status line.
func (s Sample) String() string {
	return fmt.Sprintf("CPU %.1f%% | RSS %.1f MiB | Goroutines %d", s.CPUPercent, s.RSSMiB, s.Goroutines)
}
