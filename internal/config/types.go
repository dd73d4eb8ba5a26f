package config

import (
	"time"

	"github.com/chr1sbest/tracedeps/internal/backend"
	"github.com/chr1sbest/tracedeps/internal/backend/cassandra"
	"github.com/chr1sbest/tracedeps/internal/backend/elasticsearch"
)

// DefaultPeerServiceTag is the span tag naming the remote service of a client call.
const DefaultPeerServiceTag = "peer.service"

// Config is the process configuration. It is resolved once at startup and
// not modified afterwards.
type Config struct {
	// Storage is the raw backend selector as supplied by the operator.
	Storage string `yaml:"storage"`
	// Backend is Storage parsed by Validate.
	Backend backend.Kind `yaml:"-"`

	PeerServiceTag  string        `yaml:"peer_service_tag"`
	ArtifactLocator string        `yaml:"artifact_locator"`
	Schedule        Schedule      `yaml:"schedule"`
	StateDir        string        `yaml:"state_dir"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace"`
	Log             Log           `yaml:"log"`

	Cassandra     cassandra.Config     `yaml:"cassandra"`
	Elasticsearch elasticsearch.Config `yaml:"elasticsearch"`
}

// Schedule configures the fixed-delay timer.
type Schedule struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	Period       time.Duration `yaml:"period"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns a Config with every optional setting at its default.
// Storage is left empty.
func Default() Config {
	return Config{
		PeerServiceTag: DefaultPeerServiceTag,
		Schedule: Schedule{
			InitialDelay: 10 * time.Second,
			Period:       10 * time.Second,
		},
		ShutdownGrace: 30 * time.Second,
		Log:           Log{Level: "info"},
		Cassandra:     cassandra.DefaultConfig(),
		Elasticsearch: elasticsearch.DefaultConfig(),
	}
}
