package procstats

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBytesToMiB(t *testing.T) {
	if got := BytesToMiB(3 * MiB / 2); got != 1.5 {
		t.Errorf("BytesToMiB() = %v, want 1.5", got)
	}
}

func TestSamplerReadsCurrentProcess(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first, err := s.Sample()
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if first.RSSMiB <= 0 {
		t.Errorf("RSSMiB = %v, want > 0", first.RSSMiB)
	}
	if first.Goroutines < 1 {
		t.Errorf("Goroutines = %d, want >= 1", first.Goroutines)
	}
	if first.CPUPercent < 0 {
		t.Errorf("CPUPercent = %v, want >= 0", first.CPUPercent)
	}
	if s.Last().At != first.At {
		t.Error("Last() should return the latest sample")
	}
}

func TestSampleString(t *testing.T) {
	line := Sample{CPUPercent: 12.34, RSSMiB: 20, Goroutines: 7}.String()
	for _, want := range []string{"CPU 12.3%", "RSS 20.0 MiB", "Goroutines 7"} {
		if !strings.Contains(line, want) {
			t.Errorf("String() = %q, missing %q", line, want)
		}
	}
}

func TestRunStopsWithContext(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.Last().At.IsZero() {
		t.Error("expected at least one sample")
	}
}
