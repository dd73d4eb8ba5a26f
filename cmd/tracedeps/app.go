package main

import (
	"fmt"
	"io"

	"github.com/chr1sbest/tracedeps/internal/artifact"
	"github.com/chr1sbest/tracedeps/internal/backend"
	"github.com/chr1sbest/tracedeps/internal/backend/cassandra"
	"github.com/chr1sbest/tracedeps/internal/backend/elasticsearch"
	"github.com/chr1sbest/tracedeps/internal/config"
	"github.com/chr1sbest/tracedeps/internal/logger"
	"github.com/chr1sbest/tracedeps/internal/runner"
	"github.com/chr1sbest/tracedeps/internal/tracker"
)

// app holds everything a command needs once configuration is resolved.
type app struct {
	cfg      config.Config
	runID    string
	log      logger.Logger
	registry *backend.Registry
	locator  *artifact.Locator
	runner   *runner.Runner
	tracker  *tracker.Writer

	closers []func() error
}

func newApp(cfg config.Config, stdout io.Writer) (*app, error) {
	a := &app{cfg: cfg, runID: tracker.NewRunID()}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	var log logger.Logger = logger.NewWriterLogger(stdout, level)
	if cfg.Log.File != "" {
		fileLog, err := logger.NewFileLogger(cfg.Log.File, level)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fileLog.Close)
		log = logger.NewMultiLogger(log, fileLog)
	}
	a.log = log.WithFields(logger.F("process", a.runID))

	a.registry = backend.NewRegistry()
	a.registry.Register(backend.Cassandra, cassandra.NewBuilder(cfg.Cassandra, a.log))
	a.registry.Register(backend.Elasticsearch, elasticsearch.NewBuilder(cfg.Elasticsearch, a.log))

	a.locator = artifact.NewLocator(cfg.ArtifactLocator)

	a.runner = runner.NewRunner(cfg.Backend, cfg.PeerServiceTag, a.registry, a.locator, a.log)
	a.runner.AddReporter(runner.NewLogReporter(a.log))

	if cfg.StateDir != "" {
		if err := a.enableTracking(); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) enableTracking() error {
	w := tracker.NewWriter(a.cfg.StateDir)
	w.SetLogger(a.log)

	release, err := w.AcquireLock(a.runID)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, release)

	err = w.Begin(tracker.Process{
		RunID:          a.runID,
		Backend:        string(a.cfg.Backend),
		PeerServiceTag: a.cfg.PeerServiceTag,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("initialise run state: %w", err)
	}

	a.tracker = w
	a.runner.AddReporter(w)
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
