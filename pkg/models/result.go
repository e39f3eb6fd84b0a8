package models

import (
	"time"

	"github.com/google/uuid"
)

// LoadState is the loader's position in its state machine. A load attempt
// moves Idle → Staging → Validating → Committing, or through RollingBack
// back to Idle on any failure.
type LoadState string

const (
	StateIdle        LoadState = "idle"
	StateStaging     LoadState = "staging"
	StateValidating  LoadState = "validating"
	StateCommitting  LoadState = "committing"
	StateRollingBack LoadState = "rolling_back"
)

// ValidationOutcome records the post-write checks run before commit.
type ValidationOutcome struct {
	RowCountsOK     bool
	OrphansOK       bool
	ReferencesOK    bool
	SampleReadOK    bool
	SampleReadValue string
	Failures        []string
}

// OK reports whether every validation check passed.
func (v *ValidationOutcome) OK() bool {
	return v.RowCountsOK && v.OrphansOK && v.ReferencesOK && v.SampleReadOK
}

// LoadResult is the structured outcome of one atomic load. The core never
// logs; the CLI layer renders this verbatim.
type LoadResult struct {
	BatchID    uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool
	FinalState LoadState
	Attempts   int
	TableRows  map[string]int64
	Duplicates []string
	Orphans    []string
	Warnings   []Warning
	Validation ValidationOutcome
	Err        string
}
