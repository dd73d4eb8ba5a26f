package tracker

import (
	"time"

	"github.com/chr1sbest/tracedeps/internal/runner"
)

// Process identifies the running scheduler.
type Process struct {
	RunID          string `json:"run_id"`
	Backend        string `json:"backend"`
	PeerServiceTag string `json:"peer_service_tag"`
	Version        string `json:"version,omitempty"`
}

// Counters accumulate across process restarts.
type Counters struct {
	Runs      int `json:"runs"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// State is the content of state.json.
type State struct {
	Process
	PID                 int            `json:"pid"`
	StartedAt           time.Time      `json:"started_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Status              string         `json:"status"`
	CurrentRunID        string         `json:"current_run_id,omitempty"`
	Totals              Counters       `json:"totals"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastSuccessAt       *time.Time     `json:"last_success_at,omitempty"`
	LastOutcome         *OutcomeRecord `json:"last_outcome,omitempty"`
}

// OutcomeRecord is the persisted form of a runner.Outcome.
type OutcomeRecord struct {
	RequestID  string    `json:"request_id"`
	Day        string    `json:"day"`
	Backend    string    `json:"backend"`
	Artifact   string    `json:"artifact,omitempty"`
	Digest     string    `json:"artifact_sha256,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Succeeded  bool      `json:"succeeded"`
	Error      string    `json:"error,omitempty"`
}

func recordOf(o runner.Outcome) OutcomeRecord {
	return OutcomeRecord{
		RequestID:  o.Request.ID,
		Day:        o.Request.Day.String(),
		Backend:    string(o.Request.Backend),
		Artifact:   o.Request.Artifact,
		Digest:     o.Digest,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		DurationMS: o.Duration().Milliseconds(),
		Succeeded:  o.Succeeded,
		Error:      o.Reason(),
	}
}
