// Package runner provides the dispatch loop for crankping.
//
// A [Runner] fires rounds of exactly Workers concurrent jobs. Every job gets
// the next value of a global request counter and the identifier at
// counter mod len(Identifiers). The round is joined before the next one
// starts, so no more than Workers requests are ever in flight.
//
// # Basic Usage
//
//	stream := result.NewStream(0)
//	r := runner.New(runner.Options{
//		Workers:     10,
//		Identifiers: ids,
//		Executor:    worker,
//		Emitter:     stream,
//	})
//	if err := r.Start(ctx); err != nil {
//		return err // *runner.ConfigurationError for an empty identifier list
//	}
//	...
//	dispatched := r.Stop()
//
// # Counter Convention
//
// The counter starts at 0 and is incremented before use, so the first
// request is number 1 and uses Identifiers[1 % len(Identifiers)].
//
// # Lifecycle
//
// IDLE -> RUNNING -> STOPPING -> STOPPED. Stop and context cancellation are
// cooperative: they are observed between rounds and never abort in-flight
// requests, which run under a context detached from cancellation.
//
// # Executors
//
// An [Executor] turns a [Job] into exactly one [result.Record]. The runner
// emits that record exactly once, labels it with the job's number and slot,
// and converts a panicking executor into an ERROR record.
//
// # Middleware
//
//   - [WithLogging]: Log records that did not succeed
package runner
