package cassandra

import (
	"errors"
	"time"
)

// Config holds the connection settings of the Cassandra backend.
type Config struct {
	ContactPoints  []string      `yaml:"contact_points"`
	Port           int           `yaml:"port"`
	Keyspace       string        `yaml:"keyspace"`
	LocalDC        string        `yaml:"local_dc"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	UseSSL         bool          `yaml:"use_ssl"`
	Timeout        time.Duration `yaml:"timeout"`
	PageSize       int           `yaml:"page_size"`
	ConnectRetries uint64        `yaml:"connect_retries"`
}

// DefaultConfig matches a single local node with the default Jaeger keyspace.
func DefaultConfig() Config {
	return Config{
		ContactPoints:  []string{"localhost"},
		Port:           9042,
		Keyspace:       "jaeger_v1_dc1",
		Timeout:        30 * time.Second,
		PageSize:       5000,
		ConnectRetries: 3,
	}
}

func (c Config) Validate() error {
	if len(c.ContactPoints) == 0 {
		return errors.New("CASSANDRA_CONTACT_POINTS is required")
	}
	for _, p := range c.ContactPoints {
		if p == "" {
			return errors.New("CASSANDRA_CONTACT_POINTS contains an empty host")
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("CASSANDRA_PORT must be between 1 and 65535")
	}
	if c.Keyspace == "" {
		return errors.New("CASSANDRA_KEYSPACE is required")
	}
	if c.Timeout <= 0 {
		return errors.New("CASSANDRA_TIMEOUT must be positive")
	}
	if c.PageSize < 1 {
		return errors.New("CASSANDRA_PAGE_SIZE must be >= 1")
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("CASSANDRA_PASSWORD requires CASSANDRA_USERNAME")
	}
	return nil
}
