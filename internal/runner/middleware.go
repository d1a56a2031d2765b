package runner

import (
	"context"

	"github.com/torosent/crankping/internal/result"
)

// FailureLogger logs records that did not succeed.
type FailureLogger interface {
	LogFailure(rec result.Record)
}

// loggingExecutor wraps an Executor with failure logging.
type loggingExecutor struct {
	inner  Executor
	logger FailureLogger
}

// WithLogging wraps an Executor to log failed records.
func WithLogging(exec Executor, logger FailureLogger) Executor {
	if logger == nil {
		return exec
	}
	return &loggingExecutor{
		inner:  exec,
		logger: logger,
	}
}

func (l *loggingExecutor) Execute(ctx context.Context, job Job) result.Record {
	rec := l.inner.Execute(ctx, job)
	if rec.Failed() {
		l.logger.LogFailure(rec)
	}
	return rec
}
