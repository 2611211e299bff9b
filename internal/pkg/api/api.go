package api

import (
	"fmt"
	"strings"
)

// PrmFile is the multipart file param, PrmFile2..PrmFile10 for more files
const PrmFile = "file"

// ErrNotFound indicates an unknown job or segment id
type ErrNotFound struct {
	What, ID string
}

func NewErrNotFound(what, id string) error {
	return &ErrNotFound{What: what, ID: id}
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("no %s with id '%s'", e.What, e.ID)
}

// ErrConflict indicates a concurrent mutation was detected,
// the caller must re-read and retry
type ErrConflict struct {
	Msg string
}

func NewErrConflict(msg string) error {
	return &ErrConflict{Msg: msg}
}

func (e *ErrConflict) Error() string {
	return e.Msg
}

// ErrDuplicate indicates a name uniqueness violation among non-deleted jobs
type ErrDuplicate struct {
	Name string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("name '%s' is already used", e.Name)
}

// ErrWrongState indicates an operation invalid for the job's current status
type ErrWrongState struct {
	Op, Status string
}

func NewErrWrongState(op, status string) error {
	return &ErrWrongState{Op: op, Status: status}
}

func (e *ErrWrongState) Error() string {
	return fmt.Sprintf("can't %s in status %s", e.Op, e.Status)
}

// ErrValidation indicates malformed input, rejected with no state change.
// SegmentIDs lists offending segments on a labeling commit
type ErrValidation struct {
	Msg        string
	SegmentIDs []string
}

func (e *ErrValidation) Error() string {
	if len(e.SegmentIDs) > 0 {
		return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.SegmentIDs, ", "))
	}
	return e.Msg
}
