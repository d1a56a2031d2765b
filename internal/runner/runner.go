package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/torosent/crankping/internal/result"
)

// State is the dispatcher lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ConfigurationError prevents the runner from entering RUNNING.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ErrAlreadyStarted is returned by Start on a runner that left IDLE.
var ErrAlreadyStarted = errors.New("runner already started")

// Result captures execution summary.
type Result struct {
	Total    int64 // requests dispatched
	Failures int64 // records that were not SUCCESS
	Rounds   int64 // completed rounds
	Duration time.Duration
}

// Runner dispatches fixed-size rounds of jobs, joining each round before the
// next one starts, until it is stopped.
type Runner struct {
	opt Options

	mu    sync.Mutex
	state atomic.Int32

	dispatched atomic.Int64
	failures   atomic.Int64
	rounds     atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	result   Result
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:  opt,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Dispatched returns how many requests have been dispatched so far.
func (r *Runner) Dispatched() int64 {
	return r.dispatched.Load()
}

// Start validates the options and begins dispatching in the background.
// Cancelling ctx has the same effect as Stop.
func (r *Runner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State() != StateIdle {
		return ErrAlreadyStarted
	}
	if len(r.opt.Identifiers) == 0 {
		return &ConfigurationError{Reason: "identifier list is empty"}
	}
	if r.opt.Workers < 1 {
		return &ConfigurationError{Reason: fmt.Sprintf("worker count must be >= 1, got %d", r.opt.Workers)}
	}
	if r.opt.Executor == nil {
		return &ConfigurationError{Reason: "executor is required"}
	}

	identifiers := append([]string(nil), r.opt.Identifiers...)
	r.state.Store(int32(StateRunning))
	if ctx.Err() != nil {
		// Already cancelled: stop before the loop can dispatch a round.
		r.requestStop()
	}

	go func() {
		select {
		case <-ctx.Done():
			r.requestStop()
		case <-r.done:
		}
	}()

	if r.opt.Duration > 0 {
		timer := time.AfterFunc(r.opt.Duration, r.requestStop)
		go func() {
			<-r.done
			timer.Stop()
		}()
	}

	go r.loop(ctx, identifiers)
	return nil
}

// Stop requests graceful termination: the current round finishes, no new
// round starts. It blocks until the runner is STOPPED and returns the number
// of requests dispatched.
func (r *Runner) Stop() int64 {
	r.mu.Lock()
	if r.State() == StateIdle {
		r.state.Store(int32(StateStopped))
		close(r.done)
		r.mu.Unlock()
		return 0
	}
	r.mu.Unlock()

	r.requestStop()
	<-r.done
	return r.Dispatched()
}

// Wait blocks until the runner is STOPPED.
func (r *Runner) Wait() Result {
	<-r.done
	return r.result
}

// Run starts the runner and blocks until it stops.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if err := r.Start(ctx); err != nil {
		return Result{}, err
	}
	return r.Wait(), nil
}

func (r *Runner) requestStop() {
	r.stopOnce.Do(func() {
		r.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		close(r.stop)
	})
}

func (r *Runner) stopRequested() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Runner) loop(ctx context.Context, identifiers []string) {
	start := time.Now()
	workers := r.opt.Workers
	count := int64(len(identifiers))

	// In-flight requests outlive a stop; only their own timeout bounds them.
	execCtx := context.WithoutCancel(ctx)
	swg := sizedwaitgroup.New(workers)

	var counter int64
	for round := int64(1); ; round++ {
		if r.stopRequested() {
			break
		}
		if r.opt.MaxRounds > 0 && round > r.opt.MaxRounds {
			break
		}

		if r.opt.Observer != nil {
			r.opt.Observer.RoundStarted(round, workers)
		}
		roundStart := time.Now()

		for slot := 1; slot <= workers; slot++ {
			counter++
			r.dispatched.Store(counter)
			job := Job{
				Slot:    slot,
				Number:  counter,
				Request: r.opt.Builder.Build(identifiers[counter%count]),
			}
			swg.Add()
			go func(job Job) {
				defer swg.Done()
				r.execute(execCtx, job)
			}(job)
		}
		swg.Wait()

		r.rounds.Store(round)
		if r.opt.Observer != nil {
			r.opt.Observer.RoundFinished(round, time.Since(roundStart))
		}
	}

	r.result = Result{
		Total:    r.dispatched.Load(),
		Failures: r.failures.Load(),
		Rounds:   r.rounds.Load(),
		Duration: time.Since(start),
	}
	r.state.Store(int32(StateStopped))
	close(r.done)
}

// execute runs one job and emits exactly one record for it.
func (r *Runner) execute(ctx context.Context, job Job) {
	rec := r.safeExecute(ctx, job)
	rec.RequestNumber = job.Number
	rec.Slot = job.Slot
	if rec.Identifier == "" {
		rec.Identifier = job.Request.Identifier
	}
	if rec.IdentifierPrefix == "" {
		rec.IdentifierPrefix = result.Prefix(rec.Identifier)
	}
	if rec.Outcome == "" {
		rec.Outcome = result.OutcomeError
		rec.ErrorDetail = "executor returned an unclassified record"
	}
	rec.Severity = result.SeverityFor(rec.Outcome)
	if rec.Failed() {
		r.failures.Add(1)
	}
	r.opt.Emitter.Emit(rec)
}

func (r *Runner) safeExecute(ctx context.Context, job Job) (rec result.Record) {
	defer func() {
		if p := recover(); p != nil {
			rec = ErrorRecord(job, fmt.Errorf("executor panic: %v", p), "PANIC")
		}
	}()
	return r.opt.Executor.Execute(ctx, job)
}

// NewRecord returns a record labelled with the job's number, slot and identifier.
func NewRecord(job Job) result.Record {
	return result.Record{
		RequestNumber:    job.Number,
		Slot:             job.Slot,
		Identifier:       job.Request.Identifier,
		IdentifierPrefix: result.Prefix(job.Request.Identifier),
		Timestamp:        time.Now(),
	}
}

// ErrorRecord builds an ERROR record for a job that never produced a response.
func ErrorRecord(job Job, err error, kind string) result.Record {
	rec := NewRecord(job)
	rec.Outcome = result.OutcomeError
	rec.Severity = result.SeverityNegative
	rec.ErrorKind = kind
	if err != nil {
		rec.ErrorDetail = err.Error()
	}
	return rec
}
