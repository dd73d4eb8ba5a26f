package main

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var version = "dev"

var commit = "none"

var date = "unknown"

func versionLine() string {
	if version != "dev" {
		return fmt.Sprintf("tracedeps version %s", version)
	}

	c := strings.TrimSpace(commit)
	d := strings.TrimSpace(date)

	if isUnset(c, "none") || isUnset(d, "unknown") {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				v := strings.TrimSpace(s.Value)
				switch {
				case s.Key == "vcs.revision" && isUnset(c, "none") && v != "":
					c = v
				case s.Key == "vcs.time" && isUnset(d, "unknown") && v != "":
					d = v
				}
			}
		}
	}

	if !isUnset(c, "none") && len(c) > 7 {
		c = c[:7]
	}

	switch {
	case isUnset(c, "none") && isUnset(d, "unknown"):
		return "tracedeps version dev"
	case isUnset(c, "none"):
		return fmt.Sprintf("tracedeps version dev (built %s)", d)
	case isUnset(d, "unknown"):
		return fmt.Sprintf("tracedeps version dev (commit %s)", c)
	}
	return fmt.Sprintf("tracedeps version dev (commit %s, built %s)", c, d)
}

func isUnset(v, placeholder string) bool {
	return v == "" || v == placeholder
}
