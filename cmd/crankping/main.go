package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/crankping/internal/config"
	"github.com/torosent/crankping/internal/dashboard"
	"github.com/torosent/crankping/internal/httpclient"
	"github.com/torosent/crankping/internal/identifiers"
	"github.com/torosent/crankping/internal/metrics"
	"github.com/torosent/crankping/internal/output"
	"github.com/torosent/crankping/internal/payload"
	"github.com/torosent/crankping/internal/procstats"
	"github.com/torosent/crankping/internal/promexport"
	"github.com/torosent/crankping/internal/result"
	"github.com/torosent/crankping/internal/runner"
	"github.com/torosent/crankping/internal/threshold"
	"github.com/torosent/crankping/internal/tracing"
)

const (
	commandName      = "crankping"
	progressInterval = time.Second
	sampleInterval   = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, stderr)

	format, err := identifiers.ParseFormat(cfg.RefIDsFormat)
	if err != nil {
		return err
	}
	ids, err := identifiers.Resolve(identifiers.Options{
		List:         cfg.RefIDs,
		Env:          cfg.RefIDsEnv,
		File:         cfg.RefIDsFile,
		FileOptional: cfg.RefIDsFileOptional(),
		Format:       format,
		Field:        cfg.RefIDsField,
	})
	if err != nil {
		if errors.Is(err, identifiers.ErrEmpty) {
			return &runner.ConfigurationError{Reason: err.Error()}
		}
		return err
	}
	logger.Debug("identifiers loaded", "count", ids.Len(), "origin", ids.Origin, "path", ids.Path)

	if cfg.LockFile != "" {
		lock := flock.New(cfg.LockFile)
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock file %s: %w", cfg.LockFile, err)
		}
		if !locked {
			return fmt.Errorf("another crankping run holds %s", cfg.LockFile)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("failed to release lock file", "path", cfg.LockFile, "error", err)
			}
		}()
		logger.Debug("lock acquired", "path", cfg.LockFile)
	}

	runID := ulid.Make().String()

	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.Run{
		ID:          runID,
		Command:     commandName,
		Target:      cfg.TargetURL,
		Workers:     cfg.Workers,
		Identifiers: ids.Len(),
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	requestBuilder, err := httpclient.NewRequestBuilder(cfg)
	if err != nil {
		return err
	}
	client := httpclient.NewClient(cfg.Timeout, cfg.Workers)

	var executor runner.Executor = httpclient.NewWorker(client, requestBuilder, httpclient.WithTracing(provider))
	if cfg.LogErrors && !cfg.Dashboard {
		executor = runner.WithLogging(executor, newStderrFailureLogger(stderr))
	}

	// Background services outlive a stop request so the final scrape and
	// the dashboard see the last round.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	var sampler *procstats.Sampler
	if cfg.Dashboard || cfg.MetricsAddr != "" {
		sampler, err = procstats.New()
		if err != nil {
			logger.Warn("process stats unavailable", "error", err)
			sampler = nil
		} else {
			go sampler.Run(bgCtx, sampleInterval)
		}
	}

	var observer runner.RoundObserver
	if cfg.MetricsAddr != "" {
		exporter := promexport.New(sampler)
		addr, errc, err := exporter.Listen(bgCtx, cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		logger.Info("serving metrics", "addr", addr.String(), "path", "/metrics")
		go func() {
			if err := <-errc; err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		executor = exporter.Wrap(executor)
		observer = exporter
	}

	collector := metrics.NewCollector()
	stream := result.NewStream(cfg.ResultBuffer)

	r := runner.New(runner.Options{
		Workers:     cfg.Workers,
		Identifiers: ids.Values,
		Builder:     payload.NewBuilder(cfg.UserAgents),
		Executor:    executor,
		Emitter:     stream,
		MaxRounds:   cfg.Rounds,
		Duration:    cfg.Duration,
		Observer:    observer,
	})

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	info := output.RunInfo{
		RunID:       runID,
		Target:      requestBuilder.Target(),
		Workers:     cfg.Workers,
		Identifiers: ids.Len(),
		Rounds:      cfg.Rounds,
	}
	if cfg.Duration > 0 {
		info.Duration = cfg.Duration.String()
	}

	sinks := []result.Sink{collector}
	var (
		console  *output.Console
		lines    *output.JSONLines
		dash     *dashboard.Dashboard
		progress *output.ProgressReporter
	)
	switch {
	case cfg.Dashboard:
		dash, err = dashboard.New(collector, sampler, dashboard.RunConfig{
			RunID:       runID,
			TargetURL:   requestBuilder.Target(),
			Workers:     cfg.Workers,
			Identifiers: ids.Len(),
			Rounds:      cfg.Rounds,
			Duration:    cfg.Duration,
			Timeout:     cfg.Timeout,
			ConfigFile:  cfg.ConfigFile,
		}, stopRun)
		if err != nil {
			return err
		}
		sinks = append(sinks, dash)
	case cfg.JSONOutput:
		lines = output.NewJSONLines(stdout, runID)
		sinks = append(sinks, lines)
	case cfg.Quiet:
		progress = output.NewProgressReporter(collector, r.Dispatched, progressInterval, stdout)
	default:
		console = output.NewConsole(stdout)
		console.Banner(info)
		sinks = append(sinks, console)
	}

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		result.Pump(stream.Records(), sinks...)
	}()

	collector.Start()
	if err := r.Start(runCtx); err != nil {
		stream.Close()
		<-pumped
		if dash != nil {
			dash.Stop()
		}
		return err
	}
	if dash != nil {
		dash.Start()
	}
	if progress != nil {
		progress.Start()
	}

	res := r.Wait()
	stream.Close()
	<-pumped

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}
	bgCancel()

	if console != nil {
		console.Stopped(stopReason(runCtx, cfg, res), res.Total)
	}

	report := output.Report{
		RunID:      runID,
		Target:     requestBuilder.Target(),
		Workers:    cfg.Workers,
		Rounds:     res.Rounds,
		Dispatched: res.Total,
		Stats:      collector.Stats(res.Duration),
	}
	report.Thresholds = threshold.NewEvaluator(thresholds).Evaluate(report.Stats)

	if cfg.JSONOutput {
		if err := lines.Err(); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
	}

	if failed := threshold.Failed(report.Thresholds); failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(report.Thresholds))
	}
	return nil
}

// stopReason describes why the runner left RUNNING.
func stopReason(ctx context.Context, cfg *config.Config, res runner.Result) string {
	switch {
	case ctx.Err() != nil:
		return "Script stopped by user"
	case cfg.Rounds > 0 && res.Rounds >= cfg.Rounds:
		return fmt.Sprintf("Completed %d rounds", res.Rounds)
	case cfg.Duration > 0:
		return fmt.Sprintf("Duration of %s elapsed", cfg.Duration)
	default:
		return "Script stopped"
	}
}

func newLogger(cfg *config.Config, stderr io.Writer) *slog.Logger {
	if cfg.Dashboard {
		stderr = io.Discard
	}
	level := slog.LevelInfo
	if cfg.Quiet || cfg.JSONOutput {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}
