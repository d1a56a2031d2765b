package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/crankping/internal/payload"
	"github.com/torosent/crankping/internal/result"
	"github.com/torosent/crankping/internal/runner"
)

// fakeExecutor simulates performing a request with fixed latency and tracks
// how many executions overlap.
type fakeExecutor struct {
	latency     time.Duration
	outcome     result.Outcome
	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	ctxErrs     atomic.Int64
}

func (f *fakeExecutor) Execute(ctx context.Context, job runner.Job) result.Record {
	f.calls.Add(1)
	current := f.inFlight.Add(1)
	for {
		prev := f.maxInFlight.Load()
		if current <= prev || f.maxInFlight.CompareAndSwap(prev, current) {
			break
		}
	}
	time.Sleep(f.latency)
	if ctx.Err() != nil {
		f.ctxErrs.Add(1)
	}
	f.inFlight.Add(-1)

	rec := runner.NewRecord(job)
	rec.Outcome = f.outcome
	if rec.Outcome == "" {
		rec.Outcome = result.OutcomeSuccess
	}
	rec.StatusCode = 200
	return rec
}

// collectingEmitter records everything it receives.
type collectingEmitter struct {
	mu      sync.Mutex
	records []result.Record
}

func (c *collectingEmitter) Emit(rec result.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return true
}

func (c *collectingEmitter) snapshot() []result.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]result.Record(nil), c.records...)
}

// roundRecorder records round notifications.
type roundRecorder struct {
	mu       sync.Mutex
	started  []int64
	finished []int64
}

func (r *roundRecorder) RoundStarted(round int64, workers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, round)
}

func (r *roundRecorder) RoundFinished(round int64, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, round)
}

func TestRunnerDispatchesRoundsTimesWorkers(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		workers int
		rounds  int64
	}{
		{"single identifier", []string{"only"}, 3, 4},
		{"more workers than identifiers", []string{"a", "b"}, 5, 3},
		{"more identifiers than workers", []string{"a", "b", "c", "d", "e", "f", "g"}, 2, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{latency: time.Millisecond}
			emitter := &collectingEmitter{}
			r := runner.New(runner.Options{
				Workers:     tt.workers,
				Identifiers: tt.ids,
				Executor:    exec,
				Emitter:     emitter,
				MaxRounds:   tt.rounds,
			})
			res, err := r.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			want := tt.rounds * int64(tt.workers)
			if res.Total != want {
				t.Fatalf("expected total %d, got %d", want, res.Total)
			}
			if res.Rounds != tt.rounds {
				t.Fatalf("expected %d rounds, got %d", tt.rounds, res.Rounds)
			}
			if exec.calls.Load() != want {
				t.Fatalf("expected %d executions, got %d", want, exec.calls.Load())
			}
			records := emitter.snapshot()
			if int64(len(records)) != want {
				t.Fatalf("expected %d records, got %d", want, len(records))
			}
			seen := make(map[int64]bool)
			for _, rec := range records {
				if seen[rec.RequestNumber] {
					t.Fatalf("request %d emitted twice", rec.RequestNumber)
				}
				seen[rec.RequestNumber] = true
				wantID := tt.ids[rec.RequestNumber%int64(len(tt.ids))]
				if rec.Identifier != wantID {
					t.Fatalf("request %d used %q, want %q", rec.RequestNumber, rec.Identifier, wantID)
				}
				if rec.Slot < 1 || rec.Slot > tt.workers {
					t.Fatalf("slot %d out of range", rec.Slot)
				}
			}
			if r.State() != runner.StateStopped {
				t.Fatalf("expected STOPPED, got %s", r.State())
			}
		})
	}
}

func TestRunnerRoundRobinStartsAtIndexOne(t *testing.T) {
	emitter := &collectingEmitter{}
	r := runner.New(runner.Options{
		Workers:     1,
		Identifiers: []string{"a", "b", "c"},
		Executor:    &fakeExecutor{},
		Emitter:     emitter,
		MaxRounds:   6,
	})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	records := emitter.snapshot()
	want := []string{"b", "c", "a", "b", "c", "a"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, rec := range records {
		if rec.RequestNumber != int64(i+1) {
			t.Fatalf("record %d has number %d", i, rec.RequestNumber)
		}
		if rec.Identifier != want[i] {
			t.Fatalf("request %d used %q, want %q", rec.RequestNumber, rec.Identifier, want[i])
		}
	}
}

func TestRunnerBoundsInFlightToWorkers(t *testing.T) {
	exec := &fakeExecutor{latency: 5 * time.Millisecond}
	r := runner.New(runner.Options{
		Workers:     4,
		Identifiers: []string{"a", "b", "c"},
		Executor:    exec,
		MaxRounds:   10,
	})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := exec.maxInFlight.Load(); got > 4 {
		t.Fatalf("max in flight %d exceeds worker count", got)
	}
	if got := exec.maxInFlight.Load(); got < 2 {
		t.Fatalf("expected workers to overlap, max in flight %d", got)
	}
}

func TestRunnerEmptyIdentifiersIsConfigurationError(t *testing.T) {
	exec := &fakeExecutor{}
	r := runner.New(runner.Options{
		Workers:  3,
		Executor: exec,
	})
	err := r.Start(context.Background())
	var cfgErr *runner.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if r.State() != runner.StateIdle {
		t.Fatalf("expected IDLE after failed start, got %s", r.State())
	}
	if got := r.Stop(); got != 0 {
		t.Fatalf("expected 0 dispatched, got %d", got)
	}
	if exec.calls.Load() != 0 {
		t.Fatalf("expected no executions, got %d", exec.calls.Load())
	}
}

func TestRunnerRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  runner.Options
	}{
		{"zero workers", runner.Options{Identifiers: []string{"a"}, Executor: &fakeExecutor{}}},
		{"missing executor", runner.Options{Workers: 1, Identifiers: []string{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runner.New(tt.opt).Run(context.Background())
			var cfgErr *runner.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestRunnerStopLetsCurrentRoundFinish(t *testing.T) {
	const workers = 3
	release := make(chan struct{})
	var roundTwoStarted sync.Once
	inRoundTwo := make(chan struct{})

	exec := runner.ExecutorFunc(func(ctx context.Context, job runner.Job) result.Record {
		if job.Number > workers {
			roundTwoStarted.Do(func() { close(inRoundTwo) })
			<-release
		}
		rec := runner.NewRecord(job)
		rec.Outcome = result.OutcomeSuccess
		return rec
	})

	emitter := &collectingEmitter{}
	r := runner.New(runner.Options{
		Workers:     workers,
		Identifiers: []string{"a", "b"},
		Executor:    exec,
		Emitter:     emitter,
	})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	<-inRoundTwo
	stopped := make(chan int64)
	go func() { stopped <- r.Stop() }()

	// Stop must wait for round 2 to drain.
	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight round finished")
	case <-time.After(20 * time.Millisecond):
	}
	if r.State() != runner.StateStopping {
		t.Fatalf("expected STOPPING while round drains, got %s", r.State())
	}

	close(release)
	dispatched := <-stopped
	if dispatched != 2*workers {
		t.Fatalf("expected %d dispatched, got %d", 2*workers, dispatched)
	}
	if got := len(emitter.snapshot()); got != 2*workers {
		t.Fatalf("expected %d records, got %d", 2*workers, got)
	}
	res := r.Wait()
	if res.Rounds != 2 || res.Total != 2*workers {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunnerContextCancelDoesNotAbortInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	var sawCancel atomic.Bool

	exec := runner.ExecutorFunc(func(execCtx context.Context, job runner.Job) result.Record {
		once.Do(func() { close(started) })
		time.Sleep(20 * time.Millisecond)
		if execCtx.Err() != nil {
			sawCancel.Store(true)
		}
		rec := runner.NewRecord(job)
		rec.Outcome = result.OutcomeSuccess
		return rec
	})

	r := runner.New(runner.Options{
		Workers:     2,
		Identifiers: []string{"a"},
		Executor:    exec,
	})
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started
	cancel()

	res := r.Wait()
	if sawCancel.Load() {
		t.Fatal("in-flight executor observed cancellation")
	}
	if res.Total%2 != 0 || res.Total == 0 {
		t.Fatalf("expected whole rounds, got total %d", res.Total)
	}
}

func TestRunnerCancelledBeforeStartDispatchesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExecutor{}
	for i := 0; i < 50; i++ {
		r := runner.New(runner.Options{
			Workers:     3,
			Identifiers: []string{"a", "b"},
			Executor:    exec,
		})
		res, err := r.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if res.Total != 0 || res.Rounds != 0 {
			t.Fatalf("attempt %d: dispatched %d requests in %d rounds, want none", i, res.Total, res.Rounds)
		}
		if r.State() != runner.StateStopped {
			t.Fatalf("State() = %v, want STOPPED", r.State())
		}
	}
	if got := exec.calls.Load(); got != 0 {
		t.Fatalf("executor called %d times", got)
	}
}

func TestRunnerHonorsDuration(t *testing.T) {
	r := runner.New(runner.Options{
		Workers:     2,
		Identifiers: []string{"a"},
		Executor:    &fakeExecutor{latency: 5 * time.Millisecond},
		Duration:    40 * time.Millisecond,
	})
	start := time.Now()
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 40*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Fatalf("duration enforcement off: %s", elapsed)
	}
	if res.Total == 0 || res.Total%2 != 0 {
		t.Fatalf("expected whole rounds, got %d", res.Total)
	}
}

func TestRunnerContainsExecutorPanics(t *testing.T) {
	exec := runner.ExecutorFunc(func(ctx context.Context, job runner.Job) result.Record {
		if job.Number == 2 {
			panic("boom")
		}
		rec := runner.NewRecord(job)
		rec.Outcome = result.OutcomeSuccess
		return rec
	})
	emitter := &collectingEmitter{}
	r := runner.New(runner.Options{
		Workers:     2,
		Identifiers: []string{"a", "b"},
		Executor:    exec,
		Emitter:     emitter,
		MaxRounds:   2,
	})
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Total != 4 || res.Failures != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, rec := range emitter.snapshot() {
		if rec.RequestNumber == 2 {
			if rec.Outcome != result.OutcomeError || rec.ErrorKind != "PANIC" || rec.Severity != result.SeverityNegative {
				t.Fatalf("unexpected panic record %+v", rec)
			}
		}
	}
}

func TestRunnerNotifiesObserver(t *testing.T) {
	obs := &roundRecorder{}
	r := runner.New(runner.Options{
		Workers:     2,
		Identifiers: []string{"a"},
		Executor:    &fakeExecutor{},
		MaxRounds:   3,
		Observer:    obs,
	})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(obs.started) != 3 || len(obs.finished) != 3 {
		t.Fatalf("expected 3 rounds observed, got %v / %v", obs.started, obs.finished)
	}
}

func TestRunnerStartTwice(t *testing.T) {
	r := runner.New(runner.Options{
		Workers:     1,
		Identifiers: []string{"a"},
		Executor:    &fakeExecutor{},
		MaxRounds:   1,
	})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, runner.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	r.Wait()
}

func TestRunnerUsesBuilder(t *testing.T) {
	emitter := &collectingEmitter{}
	var nonces sync.Map
	exec := runner.ExecutorFunc(func(ctx context.Context, job runner.Job) result.Record {
		nonces.Store(job.Request.Nonce, true)
		rec := runner.NewRecord(job)
		rec.Outcome = result.OutcomeSuccess
		return rec
	})
	r := runner.New(runner.Options{
		Workers:     2,
		Identifiers: []string{"  padded  "},
		Builder:     payload.NewBuilder(nil),
		Executor:    exec,
		Emitter:     emitter,
		MaxRounds:   1,
	})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, rec := range emitter.snapshot() {
		if rec.Identifier != "padded" || rec.IdentifierPrefix != "padded" {
			t.Fatalf("expected trimmed identifier, got %q", rec.Identifier)
		}
	}
	count := 0
	nonces.Range(func(_, _ any) bool { count++; return true })
	if count != 2 {
		t.Fatalf("expected a fresh nonce per request, got %d distinct", count)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	failed []int64
}

func (l *recordingLogger) LogFailure(rec result.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, rec.RequestNumber)
}

func TestWithLoggingLogsOnlyFailures(t *testing.T) {
	logger := &recordingLogger{}
	exec := runner.ExecutorFunc(func(ctx context.Context, job runner.Job) result.Record {
		rec := runner.NewRecord(job)
		rec.Outcome = result.OutcomeSuccess
		if job.Number%2 == 0 {
			rec.Outcome = result.OutcomeFail
		}
		return rec
	})
	r := runner.New(runner.Options{
		Workers:     2,
		Identifiers: []string{"a"},
		Executor:    runner.WithLogging(exec, logger),
		MaxRounds:   2,
	})
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(logger.failed) != 2 || res.Failures != 2 {
		t.Fatalf("expected 2 failures logged, got %v (result %+v)", logger.failed, res)
	}
	if runner.WithLogging(exec, nil) == nil {
		t.Fatal("WithLogging(nil logger) should return the executor")
	}
}
