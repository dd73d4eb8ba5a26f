package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/chr1sbest/tracedeps/internal/artifact"
	"github.com/chr1sbest/tracedeps/internal/banner"
	"github.com/chr1sbest/tracedeps/internal/calendar"
	"github.com/chr1sbest/tracedeps/internal/config"
	"github.com/chr1sbest/tracedeps/internal/logger"
	"github.com/chr1sbest/tracedeps/internal/scheduler"
)

func runCmd(args []string, env config.LookupFunc, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	quiet := fs.Bool("quiet", false, "Do not print the startup banner")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, code := setup(env, stdout, stderr)
	if a == nil {
		return code
	}
	defer a.close()

	if !*quiet {
		banner.NewWithWriter(stdout).Print(a.cfg, version)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.serve(ctx)
}

func onceCmd(args []string, env config.LookupFunc, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("once", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dayFlag := fs.String("day", "", "Day to compute (YYYY-MM-DD, default today)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var day calendar.Date
	if *dayFlag != "" {
		d, err := calendar.Parse(*dayFlag)
		if err != nil {
			fmt.Fprintf(stderr, "Invalid -day: %v\n", err)
			return 2
		}
		day = d
	}

	a, code := setup(env, stdout, stderr)
	if a == nil {
		return code
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.once(ctx, day)
}

// setup resolves configuration and builds the app. A nil app comes with
// the exit code to return.
func setup(env config.LookupFunc, stdout, stderr io.Writer) (*app, int) {
	cfg, err := config.ResolveFrom(env)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return nil, 1
	}

	a, err := newApp(cfg, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Startup failed: %v\n", err)
		return nil, 1
	}
	return a, 0
}

// serve runs the scheduler until ctx is cancelled, then waits up to the
// shutdown grace period for an in-flight run.
func (a *app) serve(ctx context.Context) int {
	watcher, err := artifact.NewWatcher(a.locator, a.log)
	if err == nil {
		if err = watcher.Start(ctx); err != nil {
			_ = watcher.Stop()
		}
	}
	if err != nil {
		a.log.Warn("Artifact change detection disabled", logger.F("error", err))
	} else {
		defer watcher.Stop()
		go a.logArtifactChanges(ctx, watcher.Changes())
	}

	sched, err := scheduler.New(func(ctx context.Context) { a.runner.Run(ctx) },
		a.cfg.Schedule.InitialDelay, a.cfg.Schedule.Period, a.log)
	if err != nil {
		a.log.Error("Invalid schedule", logger.F("error", err))
		return 1
	}
	if err := sched.Start(ctx); err != nil {
		a.log.Error("Failed to start scheduler", logger.F("error", err))
		return 1
	}

	a.log.Info("Scheduler started",
		logger.F("backend", a.cfg.Backend),
		logger.F("peer_service_tag", a.cfg.PeerServiceTag),
		logger.F("period", a.cfg.Schedule.Period),
	)

	<-ctx.Done()
	a.log.Info("Shutting down", logger.F("grace", a.cfg.ShutdownGrace))

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(a.cfg.ShutdownGrace):
		// The state file keeps showing the run as in flight; releasing the
		// lock on return stops the run from writing it afterwards.
		fields := []logger.Field{logger.F("grace", a.cfg.ShutdownGrace)}
		if a.tracker != nil {
			fields = append(fields, logger.F("run_id", a.tracker.Snapshot().CurrentRunID))
		}
		a.log.Warn("Abandoning in-flight run after the grace period", fields...)
		return 0
	}

	if a.tracker != nil {
		if err := a.tracker.MarkStopped(); err != nil {
			a.log.Warn("Failed to record shutdown", logger.F("error", err))
		}
	}
	return 0
}

// logArtifactChanges reports replaced executables until ctx ends or changes
// is closed. The next run picks up the new digest.
func (a *app) logArtifactChanges(ctx context.Context, changes <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-changes:
			if !ok {
				return
			}
			a.log.Info("Artifact replaced, next run uses the new build", logger.F("path", path))
		}
	}
}

// once performs a single run, for today or for day when it is set.
func (a *app) once(ctx context.Context, day calendar.Date) int {
	if !day.IsZero() {
		a.runner.SetDay(day)
	}
	if out := a.runner.Run(ctx); !out.Succeeded {
		return 1
	}
	return 0
}
