package elasticsearch

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the connection and index settings of the Elasticsearch backend.
type Config struct {
	Nodes           []string      `yaml:"nodes"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	IndexPrefix     string        `yaml:"index_prefix"`
	PageSize        int           `yaml:"page_size"`
	ScrollKeepAlive time.Duration `yaml:"scroll_keep_alive"`
	ConnectRetries  uint64        `yaml:"connect_retries"`
}

// DefaultConfig points at a single local node with unprefixed Jaeger indices.
func DefaultConfig() Config {
	return Config{
		Nodes:           []string{"http://localhost:9200"},
		PageSize:        1000,
		ScrollKeepAlive: time.Minute,
		ConnectRetries:  3,
	}
}

func (c Config) Validate() error {
	if len(c.Nodes) == 0 {
		return errors.New("ES_NODES is required")
	}
	for _, n := range c.Nodes {
		u, err := url.Parse(n)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ES_NODES entry %q is not an absolute URL", n)
		}
	}
	if c.PageSize < 1 || c.PageSize > 10000 {
		return errors.New("ES_PAGE_SIZE must be between 1 and 10000")
	}
	if c.ScrollKeepAlive <= 0 {
		return errors.New("ES_SCROLL_KEEP_ALIVE must be positive")
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("ES_PASSWORD requires ES_USERNAME")
	}
	return nil
}

// indexName returns the daily index for base, honouring the prefix the
// same way the Jaeger collector does.
func (c Config) indexName(base, day string) string {
	if c.IndexPrefix == "" {
		return base + day
	}
	return c.IndexPrefix + "-" + base + day
}
