// Package cassandra computes daily dependency links from spans stored in a
// Jaeger Cassandra keyspace.
package cassandra

import (
	"context"
	"fmt"

	"github.com/chr1sbest/tracedeps/internal/backend"
	"github.com/chr1sbest/tracedeps/internal/calendar"
	"github.com/chr1sbest/tracedeps/internal/dependencies"
	"github.com/chr1sbest/tracedeps/internal/logger"
)

type store interface {
	dependencies.SpanReader
	dependencies.LinkWriter
	Close()
}

// Job is one Cassandra dependency pass for a day.
type Job struct {
	day      calendar.Date
	artifact string
	log      logger.Logger
	open     func(ctx context.Context) (store, error)
}

// NewBuilder returns the backend.Builder for Cassandra jobs.
func NewBuilder(cfg Config, log logger.Logger) backend.Builder {
	return func(artifact string, day calendar.Date) (backend.Job, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		jobLog := log.WithFields(logger.F("backend", backend.Cassandra))
		return &Job{
			day:      day,
			artifact: artifact,
			log:      jobLog,
			open: func(ctx context.Context) (store, error) {
				return Open(ctx, cfg, jobLog)
			},
		}, nil
	}
}

func (j *Job) Run(ctx context.Context, tagName string) error {
	j.log.Debug("Starting Cassandra dependency job",
		logger.F("day", j.day),
		logger.F("artifact", j.artifact),
		logger.F("peer_service_tag", tagName),
	)

	s, err := j.open(ctx)
	if err != nil {
		return fmt.Errorf("connect to cassandra: %w", err)
	}
	defer s.Close()

	return dependencies.Pipeline{Reader: s, Writer: s, Day: j.day, Log: j.log}.Run(ctx, tagName)
}
