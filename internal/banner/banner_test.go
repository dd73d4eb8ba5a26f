package banner

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/chr1sbest/tracedeps/internal/backend"
	"github.com/chr1sbest/tracedeps/internal/config"
)

func TestPrint(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = backend.Elasticsearch
	cfg.Elasticsearch.Nodes = []string{"http://es:9200"}
	cfg.Elasticsearch.Password = "hunter2"
	cfg.Elasticsearch.IndexPrefix = "prod"
	cfg.StateDir = "/var/lib/tracedeps/with/a/path/long/enough/to/need/truncation/in/the/box"

	var buf bytes.Buffer
	NewWithWriter(&buf).Print(cfg, "v1.2.3")
	out := buf.String()

	for _, want := range []string{"tracedeps v1.2.3", "elasticsearch", `"peer.service"`, "http://es:9200", "prod", "every 10s"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("banner must not print credentials")
	}

	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if n := utf8.RuneCountInString(line); n != 60 {
			t.Errorf("line has width %d, want 60: %q", n, line)
		}
	}
}
