// Package dependencies derives caller->callee links between services from
// the spans of one day. It knows nothing about where spans are stored.
package dependencies

import "sort"

// Source is recorded on every link this package produces.
const Source = "jaeger"

// Span carries the fields of a stored span that link derivation needs.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string // empty for root spans
	Service      string
	Kind         string // value of the span.kind tag, e.g. "client"
	Tags         map[string]string
}

// Link is an aggregated caller->callee edge.
type Link struct {
	Parent    string `json:"parent"`
	Child     string `json:"child"`
	CallCount int64  `json:"callCount"`
	Source    string `json:"source"`
}

type edge struct {
	parent, child string
}

// Compute aggregates links across all traces in spans.
//
// A span whose parent belongs to another service yields parent->span.
// A client span tagged with peerServiceTag yields span->peer, unless one of
// its children already belongs to the peer. An empty peerServiceTag disables
// peer links.
func Compute(spans []Span, peerServiceTag string) []Link {
	traces := make(map[string][]*Span)
	for i := range spans {
		s := &spans[i]
		traces[s.TraceID] = append(traces[s.TraceID], s)
	}

	counts := make(map[edge]int64)
	for _, trace := range traces {
		countTrace(trace, peerServiceTag, counts)
	}

	links := make([]Link, 0, len(counts))
	for e, n := range counts {
		links = append(links, Link{Parent: e.parent, Child: e.child, CallCount: n, Source: Source})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Parent != links[j].Parent {
			return links[i].Parent < links[j].Parent
		}
		return links[i].Child < links[j].Child
	})
	return links
}

func countTrace(trace []*Span, peerServiceTag string, counts map[edge]int64) {
	byID := make(map[string]*Span, len(trace))
	children := make(map[string][]*Span)
	for _, s := range trace {
		byID[s.SpanID] = s
		if s.ParentSpanID != "" {
			children[s.ParentSpanID] = append(children[s.ParentSpanID], s)
		}
	}

	for _, s := range trace {
		parent, ok := byID[s.ParentSpanID]
		if !ok || parent == s || parent.Service == "" || s.Service == "" {
			continue
		}
		if parent.Service != s.Service {
			counts[edge{parent.Service, s.Service}]++
		}
	}

	if peerServiceTag == "" {
		return
	}
	for _, s := range trace {
		if s.Kind != "client" || s.Service == "" {
			continue
		}
		peer := s.Tags[peerServiceTag]
		if peer == "" || peer == s.Service {
			continue
		}
		if servedBy(children[s.SpanID], peer) {
			continue
		}
		counts[edge{s.Service, peer}]++
	}
}

func servedBy(children []*Span, service string) bool {
	for _, c := range children {
		if c.Service == service {
			return true
		}
	}
	return false
}
