package dependencies

import (
	"context"
	"fmt"
	"time"

	"github.com/chr1sbest/tracedeps/internal/calendar"
	"github.com/chr1sbest/tracedeps/internal/logger"
)

// SpanReader loads every span stored for a day.
type SpanReader interface {
	ReadSpans(ctx context.Context, day calendar.Date) ([]Span, error)
}

// LinkWriter stores the links of a day, replacing what was stored before.
type LinkWriter interface {
	WriteLinks(ctx context.Context, day calendar.Date, links []Link) error
}

// Pipeline reads a day's spans, derives links and writes them back.
type Pipeline struct {
	Reader SpanReader
	Writer LinkWriter
	Day    calendar.Date
	Log    logger.Logger
}

// Run executes the pipeline with peerServiceTag naming the peer attribute.
func (p Pipeline) Run(ctx context.Context, peerServiceTag string) error {
	log := p.Log
	if log == nil {
		log = logger.NewNoopLogger()
	}
	log = log.WithFields(logger.F("day", p.Day))

	start := time.Now()
	spans, err := p.Reader.ReadSpans(ctx, p.Day)
	if err != nil {
		return fmt.Errorf("read spans: %w", err)
	}
	log.Debug("Read spans", logger.F("spans", len(spans)), logger.F("duration", time.Since(start)))

	links := Compute(spans, peerServiceTag)

	if err := p.Writer.WriteLinks(ctx, p.Day, links); err != nil {
		return fmt.Errorf("write dependencies: %w", err)
	}
	log.Info("Stored dependencies",
		logger.F("spans", len(spans)),
		logger.F("links", len(links)),
		logger.F("duration", time.Since(start)),
	)
	return nil
}
