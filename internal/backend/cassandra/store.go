package cassandra

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/gocql/gocql"

	"github.com/chr1sbest/tracedeps/internal/calendar"
	"github.com/chr1sbest/tracedeps/internal/dependencies"
	"github.com/chr1sbest/tracedeps/internal/logger"
	"github.com/chr1sbest/tracedeps/internal/resilience"
)

const (
	// start_time is not part of the traces primary key, so reading a day is
	// a filtered scan.
	selectSpans = `SELECT trace_id, span_id, parent_id, tags, refs, process FROM traces WHERE start_time >= ? AND start_time < ? ALLOW FILTERING`

	insertDependencies = `INSERT INTO dependencies_v2 (ts_bucket, ts, dependencies) VALUES (?, ?, ?)`
)

type keyValue struct {
	Key         string  `cql:"key"`
	ValueType   string  `cql:"value_type"`
	ValueString string  `cql:"value_string"`
	ValueBool   bool    `cql:"value_bool"`
	ValueLong   int64   `cql:"value_long"`
	ValueDouble float64 `cql:"value_double"`
	ValueBinary []byte  `cql:"value_binary"`
}

type spanRef struct {
	RefType string `cql:"ref_type"`
	TraceID []byte `cql:"trace_id"`
	SpanID  int64  `cql:"span_id"`
}

type process struct {
	ServiceName string     `cql:"service_name"`
	Tags        []keyValue `cql:"tags"`
}

type dependency struct {
	Parent    string `cql:"parent"`
	Child     string `cql:"child"`
	CallCount int64  `cql:"call_count"`
	Source    string `cql:"source"`
}

type spanRow struct {
	TraceID  []byte
	SpanID   int64
	ParentID int64
	Tags     []keyValue
	Refs     []spanRef
	Process  process
}

// Store reads spans from the traces table and writes dependencies_v2.
type Store struct {
	session  *gocql.Session
	pageSize int
}

func newCluster(cfg Config) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.ContactPoints...)
	cluster.Port = cfg.Port
	cluster.Keyspace = cfg.Keyspace
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout
	cluster.Consistency = gocql.LocalOne
	if cfg.LocalDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(cfg.LocalDC))
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.UseSSL {
		cluster.SslOpts = &gocql.SslOptions{
			Config:                 &tls.Config{MinVersion: tls.VersionTLS12},
			EnableHostVerification: true,
		}
	}
	return cluster
}

// Open connects to the cluster, retrying transient failures.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	cluster := newCluster(cfg)
	policy := resilience.DefaultConnectPolicy()
	policy.MaxRetries = cfg.ConnectRetries

	var session *gocql.Session
	err := resilience.Connect(ctx, policy, func() error {
		s, err := cluster.CreateSession()
		if err != nil {
			return err
		}
		session = s
		return nil
	}, func(err error, next time.Duration) {
		log.Warn("Cassandra connection failed, retrying",
			logger.F("error", err),
			logger.F("next_attempt_in", next),
		)
	})
	if err != nil {
		return nil, err
	}
	return &Store{session: session, pageSize: cfg.PageSize}, nil
}

// ReadSpans pages through every span that started during day, local time.
func (s *Store) ReadSpans(ctx context.Context, day calendar.Date) ([]dependencies.Span, error) {
	start, end := day.Bounds(time.Local)
	iter := s.session.Query(selectSpans, start.UnixMicro(), end.UnixMicro()).
		WithContext(ctx).
		PageSize(s.pageSize).
		Iter()

	var spans []dependencies.Span
	for {
		var row spanRow
		if !iter.Scan(&row.TraceID, &row.SpanID, &row.ParentID, &row.Tags, &row.Refs, &row.Process) {
			break
		}
		spans = append(spans, row.toSpan())
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("scan traces: %w", err)
	}
	return spans, nil
}

// WriteLinks upserts the day's row; the key is the UTC midnight of day, so
// a rerun for the same day replaces the previous result.
func (s *Store) WriteLinks(ctx context.Context, day calendar.Date, links []dependencies.Link) error {
	ts := day.In(time.UTC)
	deps := make([]dependency, len(links))
	for i, l := range links {
		deps[i] = dependency{Parent: l.Parent, Child: l.Child, CallCount: l.CallCount, Source: l.Source}
	}
	if err := s.session.Query(insertDependencies, ts, ts, deps).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("insert dependencies_v2: %w", err)
	}
	return nil
}

// Close releases the session.
func (s *Store) Close() {
	s.session.Close()
}

func (r spanRow) toSpan() dependencies.Span {
	tags := make(map[string]string, len(r.Tags))
	for _, kv := range r.Tags {
		tags[kv.Key] = kv.stringValue()
	}

	parent := ""
	for _, ref := range r.Refs {
		if ref.RefType == "child-of" && bytes.Equal(ref.TraceID, r.TraceID) {
			parent = spanID(ref.SpanID)
			break
		}
	}
	if parent == "" && r.ParentID != 0 {
		parent = spanID(r.ParentID)
	}

	return dependencies.Span{
		TraceID:      hex.EncodeToString(r.TraceID),
		SpanID:       spanID(r.SpanID),
		ParentSpanID: parent,
		Service:      r.Process.ServiceName,
		Kind:         tags["span.kind"],
		Tags:         tags,
	}
}

func spanID(id int64) string {
	return strconv.FormatUint(uint64(id), 16)
}

func (kv keyValue) stringValue() string {
	switch kv.ValueType {
	case "bool":
		return strconv.FormatBool(kv.ValueBool)
	case "int64":
		return strconv.FormatInt(kv.ValueLong, 10)
	case "float64":
		return strconv.FormatFloat(kv.ValueDouble, 'g', -1, 64)
	case "binary":
		return hex.EncodeToString(kv.ValueBinary)
	default:
		return kv.ValueString
	}
}
