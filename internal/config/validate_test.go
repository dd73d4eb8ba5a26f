package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/chr1sbest/tracedeps/internal/backend"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantFields []string
	}{
		{
			name:   "valid cassandra",
			mutate: func(c *Config) { c.Storage = "cassandra" },
		},
		{
			name:       "missing storage",
			mutate:     func(*Config) {},
			wantFields: []string{"STORAGE"},
		},
		{
			name:       "unknown storage",
			mutate:     func(c *Config) { c.Storage = "kafka" },
			wantFields: []string{"STORAGE"},
		},
		{
			name: "bad schedule",
			mutate: func(c *Config) {
				c.Storage = "cassandra"
				c.Schedule.InitialDelay = -1
				c.Schedule.Period = 0
			},
			wantFields: []string{"SCHEDULE_INITIAL_DELAY", "SCHEDULE_PERIOD"},
		},
		{
			name: "bad log level",
			mutate: func(c *Config) {
				c.Storage = "cassandra"
				c.Log.Level = "chatty"
			},
			wantFields: []string{"LOG_LEVEL"},
		},
		{
			name: "selected backend settings checked",
			mutate: func(c *Config) {
				c.Storage = "elasticsearch"
				c.Elasticsearch.Nodes = nil
			},
			wantFields: []string{"elasticsearch"},
		},
		{
			name: "unselected backend settings ignored",
			mutate: func(c *Config) {
				c.Storage = "elasticsearch"
				c.Cassandra.Keyspace = ""
			},
		},
		{
			name: "errors accumulate",
			mutate: func(c *Config) {
				c.Schedule.Period = -1
				c.ShutdownGrace = -1
			},
			wantFields: []string{"STORAGE", "SCHEDULE_PERIOD", "SHUTDOWN_GRACE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(&cfg)

			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}

			var errs ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
			}
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("expected %d errors, got %d: %v", len(tt.wantFields), len(errs), errs)
			}
			for i, field := range tt.wantFields {
				if errs[i].Field != field {
					t.Errorf("error %d: expected field %q, got %q", i, field, errs[i].Field)
				}
			}
		})
	}
}

func TestValidateSetsBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage = "Elasticsearch"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != backend.Elasticsearch {
		t.Errorf("Backend = %q", cfg.Backend)
	}
}

func TestValidationErrorsFormat(t *testing.T) {
	var empty ValidationErrors
	if empty.Error() != "no validation errors" {
		t.Errorf("unexpected empty message %q", empty.Error())
	}

	one := ValidationErrors{{Field: "STORAGE", Message: "a backend selector is required", Err: ErrMissingStorage}}
	if one.Error() != "STORAGE: a backend selector is required" {
		t.Errorf("unexpected single message %q", one.Error())
	}
	if !errors.Is(one, ErrMissingStorage) {
		t.Error("expected errors.Is to reach the cause")
	}

	two := append(one, ValidationError{Field: "SCHEDULE_PERIOD", Message: "must be positive"})
	msg := two.Error()
	if !strings.Contains(msg, "2 error(s)") || !strings.Contains(msg, "  - SCHEDULE_PERIOD: must be positive") {
		t.Errorf("unexpected message %q", msg)
	}
}
