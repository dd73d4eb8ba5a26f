package banner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/chr1sbest/tracedeps/internal/backend"
	"github.com/chr1sbest/tracedeps/internal/config"
)

// Box drawing characters
const (
	topLeft     = "╭"
	topRight    = "╮"
	bottomLeft  = "╰"
	bottomRight = "╯"
	horizontal  = "─"
	vertical    = "│"
)

// Banner prints the startup summary.
type Banner struct {
	writer io.Writer
	width  int
}

// New creates a new Banner that writes to stdout
func New() *Banner {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Banner with a custom writer (for testing)
func NewWithWriter(w io.Writer) *Banner {
	return &Banner{
		writer: w,
		width:  60,
	}
}

// Print displays the resolved configuration. Credentials are never shown.
func (b *Banner) Print(cfg config.Config, version string) {
	b.border(topLeft, topRight)
	b.line("tracedeps " + version)
	b.border(vertical, vertical)

	b.field("storage", string(cfg.Backend))
	b.field("peer tag", fmt.Sprintf("%q", cfg.PeerServiceTag))
	b.field("schedule", fmt.Sprintf("first run in %s, then every %s", cfg.Schedule.InitialDelay, cfg.Schedule.Period))
	switch cfg.Backend {
	case backend.Cassandra:
		b.field("cassandra", fmt.Sprintf("%s/%s", strings.Join(cfg.Cassandra.ContactPoints, ","), cfg.Cassandra.Keyspace))
	case backend.Elasticsearch:
		b.field("nodes", strings.Join(cfg.Elasticsearch.Nodes, ","))
		if cfg.Elasticsearch.IndexPrefix != "" {
			b.field("index prefix", cfg.Elasticsearch.IndexPrefix)
		}
	}
	if cfg.ArtifactLocator != "" {
		b.field("artifact", cfg.ArtifactLocator)
	}
	if cfg.StateDir != "" {
		b.field("state dir", cfg.StateDir)
	}

	b.border(bottomLeft, bottomRight)
}

func (b *Banner) border(left, right string) {
	fmt.Fprintf(b.writer, "%s%s%s\n", left, strings.Repeat(horizontal, b.width-2), right)
}

func (b *Banner) field(name, value string) {
	b.line(fmt.Sprintf("%-13s %s", name+":", value))
}

func (b *Banner) line(text string) {
	limit := b.width - 4
	if visualLen(text) > limit {
		text = truncate(text, limit-3) + "..."
	}
	padding := b.width - visualLen(text) - 4
	fmt.Fprintf(b.writer, "%s %s%s %s\n", vertical, text, strings.Repeat(" ", padding), vertical)
}

// visualLen returns the number of runes in s.
func visualLen(s string) int {
	return utf8.RuneCountInString(s)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
