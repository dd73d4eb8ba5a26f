package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Resolve builds the Config from the process environment.
func Resolve() (Config, error) {
	return ResolveFrom(os.LookupEnv)
}

// ResolveFrom builds the Config from defaults, then the YAML file named by
// CONFIG_FILE (if any), then the variables reported by lookup, and
// validates the result.
func ResolveFrom(lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if err := LoadFile(path, lookup, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	if err := Validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile decodes the YAML file at path into cfg. Variable references are
// expanded with lookup before parsing. Keys absent from the file keep the
// value already in cfg.
func LoadFile(path string, lookup LookupFunc, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	data = []byte(ExpandEnvVars(string(data), lookup))

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// envReader overlays environment values and collects parse failures.
type envReader struct {
	lookup LookupFunc
	errs   ValidationErrors
}

func (r *envReader) value(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

func (r *envReader) list(key string, dst *[]string) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs.add(key, fmt.Sprintf("invalid duration %q", v), err)
		return
	}
	*dst = d
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs.add(key, fmt.Sprintf("invalid integer %q", v), err)
		return
	}
	*dst = n
}

func (r *envReader) count(key string, dst *uint64) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		r.errs.add(key, fmt.Sprintf("invalid count %q", v), err)
		return
	}
	*dst = n
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs.add(key, fmt.Sprintf("invalid boolean %q", v), err)
		return
	}
	*dst = b
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	r := &envReader{lookup: lookup}

	r.str("STORAGE", &cfg.Storage)
	// An explicitly set tag is passed through as is, even when empty.
	if v, ok := lookup("PEER_SERVICE_TAG"); ok {
		cfg.PeerServiceTag = v
	}
	r.str("ARTIFACT_LOCATOR", &cfg.ArtifactLocator)
	r.duration("SCHEDULE_INITIAL_DELAY", &cfg.Schedule.InitialDelay)
	r.duration("SCHEDULE_PERIOD", &cfg.Schedule.Period)
	r.str("STATE_DIR", &cfg.StateDir)
	r.duration("SHUTDOWN_GRACE", &cfg.ShutdownGrace)
	r.str("LOG_LEVEL", &cfg.Log.Level)
	r.str("LOG_FILE", &cfg.Log.File)

	c := &cfg.Cassandra
	r.list("CASSANDRA_CONTACT_POINTS", &c.ContactPoints)
	r.integer("CASSANDRA_PORT", &c.Port)
	r.str("CASSANDRA_KEYSPACE", &c.Keyspace)
	r.str("CASSANDRA_LOCAL_DC", &c.LocalDC)
	r.str("CASSANDRA_USERNAME", &c.Username)
	r.str("CASSANDRA_PASSWORD", &c.Password)
	r.boolean("CASSANDRA_USE_SSL", &c.UseSSL)
	r.duration("CASSANDRA_TIMEOUT", &c.Timeout)
	r.integer("CASSANDRA_PAGE_SIZE", &c.PageSize)
	r.count("CASSANDRA_CONNECT_RETRIES", &c.ConnectRetries)

	e := &cfg.Elasticsearch
	r.list("ES_NODES", &e.Nodes)
	r.str("ES_USERNAME", &e.Username)
	r.str("ES_PASSWORD", &e.Password)
	r.str("ES_INDEX_PREFIX", &e.IndexPrefix)
	r.integer("ES_PAGE_SIZE", &e.PageSize)
	r.duration("ES_SCROLL_KEEP_ALIVE", &e.ScrollKeepAlive)
	r.count("ES_CONNECT_RETRIES", &e.ConnectRetries)

	if r.errs.HasErrors() {
		return r.errs
	}
	return nil
}
