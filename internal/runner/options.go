package runner

import (
	"context"
	"time"

	"github.com/torosent/crankping/internal/payload"
	"github.com/torosent/crankping/internal/result"
)

// Job is one dispatched request: the slot it runs in, its global request
// number and the request built for it.
type Job struct {
	Slot    int
	Number  int64
	Request payload.Request
}

// Executor performs one job and classifies its outcome.
// Implementations must not return errors; failures are encoded in the record.
type Executor interface {
	Execute(ctx context.Context, job Job) result.Record
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) result.Record

func (f ExecutorFunc) Execute(ctx context.Context, job Job) result.Record { return f(ctx, job) }

// Emitter receives finished records. result.Stream satisfies it.
type Emitter interface {
	Emit(rec result.Record) bool
}

// RoundObserver is notified around every round.
type RoundObserver interface {
	RoundStarted(round int64, workers int)
	RoundFinished(round int64, elapsed time.Duration)
}

// Options configure the Runner.
type Options struct {
	Workers     int              // requests per round (required, >= 1)
	Identifiers []string         // cycled round-robin (required, non-empty)
	Builder     *payload.Builder // request builder (default payload.NewBuilder(nil))
	Executor    Executor         // request executor (required)
	Emitter     Emitter          // record sink (default discards)
	MaxRounds   int64            // stop after this many rounds (0 means unlimited)
	Duration    time.Duration    // stop launching rounds after this long (0 means no cap)
	Observer    RoundObserver    // optional round hooks
}

type discardEmitter struct{}

func (discardEmitter) Emit(result.Record) bool { return true }

func (o *Options) normalize() {
	if o.Builder == nil {
		o.Builder = payload.NewBuilder(nil)
	}
	if o.Emitter == nil {
		o.Emitter = discardEmitter{}
	}
	if o.MaxRounds < 0 {
		o.MaxRounds = 0
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
}
