package cassandra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chr1sbest/tracedeps/internal/calendar"
	"github.com/chr1sbest/tracedeps/internal/dependencies"
	"github.com/chr1sbest/tracedeps/internal/logger"
)

func TestSpanRowToSpan(t *testing.T) {
	traceID := []byte{0x00, 0x01, 0xab}
	row := spanRow{
		TraceID:  traceID,
		SpanID:   255,
		ParentID: 7,
		Tags: []keyValue{
			{Key: "span.kind", ValueType: "string", ValueString: "client"},
			{Key: "peer.service", ValueType: "string", ValueString: "redis"},
			{Key: "retry", ValueType: "bool", ValueBool: true},
			{Key: "http.status_code", ValueType: "int64", ValueLong: 200},
		},
		Refs: []spanRef{
			{RefType: "follows-from", TraceID: traceID, SpanID: 1},
			{RefType: "child-of", TraceID: traceID, SpanID: 16},
		},
		Process: process{ServiceName: "api"},
	}

	s := row.toSpan()
	if s.TraceID != "0001ab" {
		t.Errorf("TraceID = %q", s.TraceID)
	}
	if s.SpanID != "ff" {
		t.Errorf("SpanID = %q", s.SpanID)
	}
	if s.ParentSpanID != "10" {
		t.Errorf("child-of reference should win over parent_id, got %q", s.ParentSpanID)
	}
	if s.Service != "api" || s.Kind != "client" {
		t.Errorf("Service=%q Kind=%q", s.Service, s.Kind)
	}
	if s.Tags["peer.service"] != "redis" || s.Tags["retry"] != "true" || s.Tags["http.status_code"] != "200" {
		t.Errorf("unexpected tags %v", s.Tags)
	}
}

func TestSpanRowParentFallbacks(t *testing.T) {
	other := []byte{0x02}
	row := spanRow{
		TraceID:  []byte{0x01},
		SpanID:   2,
		ParentID: 1,
		Refs:     []spanRef{{RefType: "child-of", TraceID: other, SpanID: 9}},
	}
	if got := row.toSpan().ParentSpanID; got != "1" {
		t.Errorf("reference into another trace must be ignored, got %q", got)
	}

	root := spanRow{TraceID: []byte{0x01}, SpanID: 1}
	if got := root.toSpan().ParentSpanID; got != "" {
		t.Errorf("root span should have no parent, got %q", got)
	}
}

func TestSpanIDNegative(t *testing.T) {
	// Span ids are unsigned 64-bit values stored in a signed bigint.
	if got := spanID(-1); got != "ffffffffffffffff" {
		t.Errorf("spanID(-1) = %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no contact points", func(c *Config) { c.ContactPoints = nil }, true},
		{"empty contact point", func(c *Config) { c.ContactPoints = []string{"a", ""} }, true},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
		{"no keyspace", func(c *Config) { c.Keyspace = "" }, true},
		{"no timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"password without user", func(c *Config) { c.Password = "secret" }, true},
		{"credentials", func(c *Config) { c.Username, c.Password = "jaeger", "secret" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type fakeStore struct {
	spans  []dependencies.Span
	links  []dependencies.Link
	day    calendar.Date
	closed bool
}

func (f *fakeStore) ReadSpans(context.Context, calendar.Date) ([]dependencies.Span, error) {
	return f.spans, nil
}

func (f *fakeStore) WriteLinks(_ context.Context, day calendar.Date, links []dependencies.Link) error {
	f.day, f.links = day, links
	return nil
}

func (f *fakeStore) Close() { f.closed = true }

func TestJobRun(t *testing.T) {
	day := calendar.Date{Year: 2024, Month: time.March, Day: 15}
	fs := &fakeStore{spans: []dependencies.Span{
		{TraceID: "t", SpanID: "1", Service: "api", Kind: "client", Tags: map[string]string{"custom.tag": "mysql"}},
	}}

	job, err := NewBuilder(DefaultConfig(), logger.NewNoopLogger())("/opt/tracedeps", day)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	j := job.(*Job)
	j.open = func(context.Context) (store, error) { return fs, nil }

	if err := j.Run(context.Background(), "custom.tag"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !fs.closed {
		t.Error("store should be closed after the run")
	}
	if fs.day != day || len(fs.links) != 1 || fs.links[0].Child != "mysql" {
		t.Errorf("unexpected write day=%v links=%+v", fs.day, fs.links)
	}
}

func TestJobRunConnectError(t *testing.T) {
	job, err := NewBuilder(DefaultConfig(), logger.NewNoopLogger())("/opt/tracedeps", calendar.Date{Year: 2024, Month: time.March, Day: 15})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	j := job.(*Job)
	connErr := errors.New("no hosts available")
	j.open = func(context.Context) (store, error) { return nil, connErr }

	if err := j.Run(context.Background(), "peer.service"); !errors.Is(err, connErr) {
		t.Errorf("expected connect error, got %v", err)
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Keyspace = ""
	if _, err := NewBuilder(cfg, logger.NewNoopLogger())("/opt/tracedeps", calendar.Date{Year: 2024, Month: time.March, Day: 15}); err == nil {
		t.Error("expected invalid config to fail the build")
	}
}
