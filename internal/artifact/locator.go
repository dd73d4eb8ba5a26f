// Package artifact locates the executable bundle that backend jobs ship to
// their workers and fingerprints it.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Artifact is a resolved bundle.
type Artifact struct {
	Path   string // absolute, URL-decoded
	Digest string // hex sha256 of the file contents
}

// Locator resolves the artifact path and caches its digest until the file
// changes. It is safe for concurrent use.
type Locator struct {
	override   string
	executable func() (string, error)

	mu     sync.Mutex
	digest map[string]string
}

// NewLocator creates a locator. An empty override means the running
// executable. The override may be a plain path, a percent-encoded path, or a
// file: URL.
func NewLocator(override string) *Locator {
	return &Locator{
		override:   override,
		executable: os.Executable,
		digest:     make(map[string]string),
	}
}

// Path returns the absolute, decoded artifact path without touching the file.
func (l *Locator) Path() (string, error) {
	if l.override != "" {
		p, err := decode(l.override)
		if err != nil {
			return "", err
		}
		return filepath.Abs(p)
	}

	exe, err := l.executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolve executable %s: %w", exe, err)
	}
	return resolved, nil
}

// Resolve returns the artifact, computing its digest on first use.
func (l *Locator) Resolve() (Artifact, error) {
	path, err := l.Path()
	if err != nil {
		return Artifact{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return Artifact{}, fmt.Errorf("artifact %s is not a regular file", path)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if d, ok := l.digest[path]; ok {
		return Artifact{Path: path, Digest: d}, nil
	}
	d, err := fileDigest(path)
	if err != nil {
		return Artifact{}, err
	}
	l.digest[path] = d
	return Artifact{Path: path, Digest: d}, nil
}

// Invalidate drops every cached digest.
func (l *Locator) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.digest)
}

func decode(locator string) (string, error) {
	if strings.HasPrefix(locator, "file:") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", fmt.Errorf("parse artifact url: %w", err)
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("artifact url %q: remote host %q not supported", locator, u.Host)
		}
		if u.Path == "" {
			return "", errors.New("artifact url has no path")
		}
		return u.Path, nil
	}

	p, err := url.PathUnescape(locator)
	if err != nil {
		return "", fmt.Errorf("decode artifact path: %w", err)
	}
	return p, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
