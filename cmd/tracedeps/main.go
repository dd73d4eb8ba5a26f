package main

import (
	"fmt"
	"io"
	"os"

	"github.com/chr1sbest/tracedeps/internal/config"
)

func main() {
	os.Exit(dispatch(os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

func dispatch(args []string, env config.LookupFunc, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return runCmd(nil, env, stdout, stderr)
	}

	switch args[0] {
	case "run":
		return runCmd(args[1:], env, stdout, stderr)
	case "once":
		return onceCmd(args[1:], env, stdout, stderr)
	case "version", "--version":
		fmt.Fprintln(stdout, versionLine())
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `tracedeps

Periodically derives the service dependency graph of the current day from
Jaeger spans and writes it back to the same storage.

Usage:
  tracedeps [command] [flags]

Commands:
  run          Run the scheduler until interrupted (default)
  once         Run a single dependency job and exit
  version      Show the version
  help         Show this message

Environment:
  STORAGE                  cassandra | elasticsearch (required)
  PEER_SERVICE_TAG         span tag naming the called service (default peer.service)
  CONFIG_FILE              optional YAML file, overridden by the environment
  SCHEDULE_INITIAL_DELAY   delay before the first run (default 10s)
  SCHEDULE_PERIOD          delay between the end of a run and the next (default 10s)
  STATE_DIR                directory for state.json and the lock file
  LOG_LEVEL, LOG_FILE      logging
  CASSANDRA_*, ES_*        backend connection settings

Examples:
  STORAGE=cassandra CASSANDRA_CONTACT_POINTS=cass1,cass2 tracedeps
  STORAGE=elasticsearch tracedeps once -day 2024-03-15

Run 'tracedeps <command> -h' for details.`)
}
