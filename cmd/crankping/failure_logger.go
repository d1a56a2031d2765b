package main

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"

	"github.com/torosent/crankping/internal/result"
)

const (
	failureLogRate  = 5
	failureLogBurst = 10
)

// stderrFailureLogger prints failed requests, dropping lines beyond
// failureLogRate per second and reporting how many were dropped.
type stderrFailureLogger struct {
	mu         sync.Mutex
	w          io.Writer
	limiter    *rate.Limiter
	suppressed int64
}

func newStderrFailureLogger(w io.Writer) *stderrFailureLogger {
	return &stderrFailureLogger{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(failureLogRate), failureLogBurst),
	}
}

func (l *stderrFailureLogger) LogFailure(rec result.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.limiter.Allow() {
		l.suppressed++
		return
	}
	if l.suppressed > 0 {
		fmt.Fprintf(l.w, "[crankping] %d failed requests not logged\n", l.suppressed)
		l.suppressed = 0
	}
	fmt.Fprintf(l.w, "[crankping] request #%d (RefID: %s...) failed: %s\n", rec.RequestNumber, rec.IdentifierPrefix, failureDetail(rec))
}

func failureDetail(rec result.Record) string {
	if rec.Outcome == result.OutcomeFail {
		return fmt.Sprintf("HTTP %d", rec.StatusCode)
	}
	if rec.ErrorKind != "" {
		return rec.ErrorKind + ": " + rec.ErrorDetail
	}
	return rec.ErrorDetail
}
