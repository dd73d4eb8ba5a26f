package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chr1sbest/tracedeps/internal/backend"
	"github.com/chr1sbest/tracedeps/internal/logger"
)

// ErrMissingStorage is reported when no backend selector was supplied.
var ErrMissingStorage = errors.New("missing environment variable STORAGE")

// ValidationError holds details about a configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	if len(errs) == 1 {
		return errs[0].Error()
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Sprintf("validation failed with %d error(s):\n%s", len(errs), strings.Join(msgs, "\n"))
}

// Unwrap exposes each error to errors.Is and errors.As.
func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// HasErrors returns true if there are any validation errors.
func (errs ValidationErrors) HasErrors() bool {
	return len(errs) > 0
}

func (errs *ValidationErrors) add(field, msg string, err error) {
	*errs = append(*errs, ValidationError{Field: field, Message: msg, Err: err})
}

// Validate checks cfg and sets cfg.Backend from cfg.Storage. Only the
// settings of the selected backend are checked.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if cfg.Storage == "" {
		errs.add("STORAGE", "a backend selector is required", ErrMissingStorage)
	} else if kind, err := backend.ParseKind(cfg.Storage); err != nil {
		errs.add("STORAGE", err.Error(), err)
	} else {
		cfg.Backend = kind
	}

	if cfg.Schedule.InitialDelay < 0 {
		errs.add("SCHEDULE_INITIAL_DELAY", "must not be negative", nil)
	}
	if cfg.Schedule.Period <= 0 {
		errs.add("SCHEDULE_PERIOD", "must be positive", nil)
	}
	if cfg.ShutdownGrace < 0 {
		errs.add("SHUTDOWN_GRACE", "must not be negative", nil)
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		errs.add("LOG_LEVEL", err.Error(), err)
	}

	switch cfg.Backend {
	case backend.Cassandra:
		if err := cfg.Cassandra.Validate(); err != nil {
			errs.add("cassandra", err.Error(), err)
		}
	case backend.Elasticsearch:
		if err := cfg.Elasticsearch.Validate(); err != nil {
			errs.add("elasticsearch", err.Error(), err)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
