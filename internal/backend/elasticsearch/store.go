package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/chr1sbest/tracedeps/internal/calendar"
	"github.com/chr1sbest/tracedeps/internal/dependencies"
	"github.com/chr1sbest/tracedeps/internal/logger"
	"github.com/chr1sbest/tracedeps/internal/resilience"
)

const (
	spanIndex       = "jaeger-span-"
	dependencyIndex = "jaeger-dependencies-"

	spanQuery = `{"query":{"match_all":{}},"_source":["traceID","spanID","parentSpanID","references","process.serviceName","tags","tag"]}`
)

type reference struct {
	RefType string `json:"refType"`
	TraceID string `json:"traceID"`
	SpanID  string `json:"spanID"`
}

type keyValue struct {
	Key   string      `json:"key"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type spanDoc struct {
	TraceID      string      `json:"traceID"`
	SpanID       string      `json:"spanID"`
	ParentSpanID string      `json:"parentSpanID"`
	References   []reference `json:"references"`
	Process      struct {
		ServiceName string `json:"serviceName"`
	} `json:"process"`
	Tags []keyValue `json:"tags"`
	// Tag holds tags stored as object fields, with '.' in keys replaced by '@'.
	Tag map[string]interface{} `json:"tag"`
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source spanDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type dependenciesDoc struct {
	Timestamp    time.Time           `json:"timestamp"`
	Dependencies []dependencies.Link `json:"dependencies"`
}

// Store reads daily span indices and writes daily dependency indices.
type Store struct {
	client *elasticsearch.Client
	cfg    Config
}

// Open creates a client and waits until the cluster answers a ping.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Nodes,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	policy := resilience.DefaultConnectPolicy()
	policy.MaxRetries = cfg.ConnectRetries

	err = resilience.Connect(ctx, policy, func() error {
		res, err := client.Ping(client.Ping.WithContext(ctx))
		if err != nil {
			return err
		}
		return checkResponse(res)
	}, func(err error, next time.Duration) {
		log.Warn("Elasticsearch ping failed, retrying",
			logger.F("error", err),
			logger.F("next_attempt_in", next),
		)
	})
	if err != nil {
		return nil, err
	}
	return &Store{client: client, cfg: cfg}, nil
}

// ReadSpans scrolls through the span index of day. A missing index yields
// no spans rather than an error.
func (s *Store) ReadSpans(ctx context.Context, day calendar.Date) ([]dependencies.Span, error) {
	index := s.cfg.indexName(spanIndex, day.String())

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(strings.NewReader(spanQuery)),
		s.client.Search.WithSize(s.cfg.PageSize),
		s.client.Search.WithScroll(s.cfg.ScrollKeepAlive),
		s.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	page, err := decodePage(res)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}

	var spans []dependencies.Span
	scrollID := page.ScrollID
	defer func() { s.clearScroll(scrollID) }()

	for len(page.Hits.Hits) > 0 {
		for _, h := range page.Hits.Hits {
			spans = append(spans, h.Source.toSpan())
		}
		if scrollID == "" {
			break
		}

		res, err := s.client.Scroll(
			s.client.Scroll.WithContext(ctx),
			s.client.Scroll.WithScrollID(scrollID),
			s.client.Scroll.WithScroll(s.cfg.ScrollKeepAlive),
		)
		if err != nil {
			return nil, fmt.Errorf("scroll %s: %w", index, err)
		}
		if page, err = decodePage(res); err != nil {
			return nil, fmt.Errorf("scroll %s: %w", index, err)
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}
	return spans, nil
}

// WriteLinks indexes the day's document under a day-derived id, so a rerun
// for the same day replaces the previous result.
func (s *Store) WriteLinks(ctx context.Context, day calendar.Date, links []dependencies.Link) error {
	if links == nil {
		links = []dependencies.Link{}
	}
	body, err := json.Marshal(dependenciesDoc{Timestamp: day.In(time.UTC), Dependencies: links})
	if err != nil {
		return fmt.Errorf("encode dependencies: %w", err)
	}

	index := s.cfg.indexName(dependencyIndex, day.String())
	res, err := s.client.Index(index, bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(day.String()),
		s.client.Index.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("index %s: %w", index, err)
	}
	if err := checkResponse(res); err != nil {
		return fmt.Errorf("index %s: %w", index, err)
	}
	return nil
}

func (s *Store) clearScroll(id string) {
	if id == "" {
		return
	}
	res, err := s.client.ClearScroll(s.client.ClearScroll.WithScrollID(id))
	if err == nil {
		_ = checkResponse(res)
	}
}

// Close is a no-op; the HTTP client holds no per-run resources.
func (s *Store) Close() {}

func checkResponse(res *esapi.Response) error {
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &resilience.StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func decodePage(res *esapi.Response) (searchResponse, error) {
	defer res.Body.Close()
	var page searchResponse
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return page, &resilience.StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("decode response: %w", err)
	}
	return page, nil
}

func (d spanDoc) toSpan() dependencies.Span {
	tags := make(map[string]string, len(d.Tags)+len(d.Tag))
	for _, kv := range d.Tags {
		tags[kv.Key] = fmt.Sprint(kv.Value)
	}
	for k, v := range d.Tag {
		tags[strings.ReplaceAll(k, "@", ".")] = fmt.Sprint(v)
	}

	parent := ""
	for _, ref := range d.References {
		if ref.RefType == "CHILD_OF" && ref.TraceID == d.TraceID {
			parent = ref.SpanID
			break
		}
	}
	if parent == "" {
		parent = d.ParentSpanID
	}

	return dependencies.Span{
		TraceID:      d.TraceID,
		SpanID:       d.SpanID,
		ParentSpanID: parent,
		Service:      d.Process.ServiceName,
		Kind:         tags["span.kind"],
		Tags:         tags,
	}
}
