package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a storage technology holding spans and dependency documents.
type Kind string

const (
	Cassandra     Kind = "cassandra"
	Elasticsearch Kind = "elasticsearch"
)

// Kinds lists every storage kind the binary understands.
var Kinds = []Kind{Cassandra, Elasticsearch}

// ErrUnsupportedStorage is returned for a selector matching no known Kind.
var ErrUnsupportedStorage = errors.New("unsupported storage")

// ParseKind matches s case-insensitively against the known kinds.
// The selector is not trimmed or otherwise normalized.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q (expected one of %s)", ErrUnsupportedStorage, s, kindList())
}

func kindList() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
