package changeset

import "errors"

var (
	// ErrChangesetNotFound means no tracked changeset has the given ID.
	ErrChangesetNotFound = errors.New("changeset: not found")

	// ErrStateConflict means a concurrent writer changed the changeset
	// file between read and write and retries were exhausted.
	ErrStateConflict = errors.New("changeset: state conflict")

	// ErrPhaseRegression means a phase transition moved backward or to
	// the phase already current.
	ErrPhaseRegression = errors.New("changeset: phase regression")

	// ErrBadChainPosition means a handoff's chain position duplicates or
	// leaves a gap in the existing handoff chain.
	ErrBadChainPosition = errors.New("changeset: bad chain position")

	// ErrUnknownPhase means the phase name is not one of the workflow
	// phases.
	ErrUnknownPhase = errors.New("changeset: unknown phase")

	// ErrNotActive means the changeset is completed or blocked and
	// rejects further mutation.
	ErrNotActive = errors.New("changeset: not active")
)
