// Package runner executes one dependency run: it works out the day,
// resolves the artifact, builds the job for the configured backend and runs
// it, turning every failure into a failed Outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/chr1sbest/tracedeps/internal/artifact"
	"github.com/chr1sbest/tracedeps/internal/backend"
	"github.com/chr1sbest/tracedeps/internal/calendar"
	"github.com/chr1sbest/tracedeps/internal/logger"
)

// ErrPanic marks an outcome whose job panicked.
var ErrPanic = errors.New("job panicked")

// ArtifactResolver resolves the path and digest handed to every job.
type ArtifactResolver interface {
	Resolve() (artifact.Artifact, error)
}

// Request holds the parameters of a single run.
type Request struct {
	ID       string
	Day      calendar.Date
	Backend  backend.Kind
	TagName  string
	Artifact string
}

// Runner performs runs for one backend and tag name.
type Runner struct {
	backend   backend.Kind
	tagName   string
	registry  *backend.Registry
	artifacts ArtifactResolver
	log       logger.Logger
	reporters []Reporter

	now   func() time.Time
	newID func() string
	day   calendar.Date
}

// NewRunner creates a runner dispatching to the registry entry for kind.
func NewRunner(kind backend.Kind, tagName string, registry *backend.Registry, artifacts ArtifactResolver, log logger.Logger) *Runner {
	return &Runner{
		backend:   kind,
		tagName:   tagName,
		registry:  registry,
		artifacts: artifacts,
		log:       log,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// SetClock replaces the clock used for the run day and timestamps.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// SetDay pins every run to day instead of the clock's current date.
func (r *Runner) SetDay(day calendar.Date) {
	r.day = day
}

// AddReporter registers a sink for outcomes.
func (r *Runner) AddReporter(rep Reporter) {
	r.reporters = append(r.reporters, rep)
}

// Run performs one run. It never panics and never returns an error; the
// result, success or not, is in the Outcome and has been handed to every
// reporter before Run returns.
func (r *Runner) Run(ctx context.Context) Outcome {
	started := r.now()

	day := r.day
	if day.IsZero() {
		day = calendar.DateOf(started)
	}

	out := Outcome{
		Request: Request{
			ID:      r.newID(),
			Day:     day,
			Backend: r.backend,
			TagName: r.tagName,
		},
		StartedAt: started,
	}

	r.log.Debug("Starting dependency run",
		logger.F("run_id", out.Request.ID),
		logger.F("day", day),
		logger.F("backend", r.backend),
	)
	for _, rep := range r.reporters {
		if s, ok := rep.(StartReporter); ok {
			s.Started(out.Request)
		}
	}

	out.Err = r.execute(ctx, &out)
	out.FinishedAt = r.now()
	out.Succeeded = out.Err == nil

	for _, rep := range r.reporters {
		rep.Report(out)
	}
	return out
}

func (r *Runner) execute(ctx context.Context, out *Outcome) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Debug("Recovered job panic", logger.F("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	art, err := r.artifacts.Resolve()
	if err != nil {
		return fmt.Errorf("resolve artifact: %w", err)
	}
	out.Request.Artifact = art.Path
	out.Digest = art.Digest

	job, err := r.registry.Build(r.backend, art.Path, out.Request.Day)
	if err != nil {
		return err
	}
	return job.Run(ctx, r.tagName)
}
