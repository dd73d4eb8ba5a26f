package runner

import (
	"time"

	"github.com/chr1sbest/tracedeps/internal/logger"
)

// Outcome is the result of one run.
type Outcome struct {
	Request    Request
	Digest     string
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  bool
	Err        error
}

// Duration returns how long the run took.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Reason returns the failure reason, or "" for a successful run.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Reporter consumes run outcomes. Report must not block for long; it runs
// on the scheduler goroutine.
type Reporter interface {
	Report(Outcome)
}

// StartReporter is a Reporter that is also told when a run begins.
type StartReporter interface {
	Reporter
	Started(Request)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Outcome)

func (f ReporterFunc) Report(o Outcome) { f(o) }

// LogReporter logs successes at INFO and failures at ERROR.
type LogReporter struct {
	log logger.Logger
}

func NewLogReporter(log logger.Logger) *LogReporter {
	return &LogReporter{log: log}
}

func (l *LogReporter) Report(o Outcome) {
	fields := []logger.Field{
		logger.F("run_id", o.Request.ID),
		logger.F("day", o.Request.Day),
		logger.F("backend", o.Request.Backend),
		logger.F("duration", o.Duration().Round(time.Millisecond)),
	}
	if o.Succeeded {
		l.log.Info("Dependency run succeeded", fields...)
		return
	}
	l.log.Error("Dependency run failed", append(fields, logger.F("error", o.Reason()))...)
}
