package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageParse  Stage = "parse"
	StageFetch  Stage = "fetch"
	StageStore  Stage = "store"
	StageLink   Stage = "link"
	StageNotify Stage = "notify"
	StageAudit  Stage = "audit"
)

// Sentinels matched by errors.Is against a *StageError.
var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrFetchFailed       = errors.New("fetch failed")
	ErrStoreFailed       = errors.New("store failed")
	ErrLinkFailed        = errors.New("link failed")
	ErrNotifyFailed      = errors.New("notify failed")
	ErrAuditFailed       = errors.New("audit failed")
)

var sentinels = map[Stage]error{
	StageParse:  ErrMalformedEnvelope,
	StageFetch:  ErrFetchFailed,
	StageStore:  ErrStoreFailed,
	StageLink:   ErrLinkFailed,
	StageNotify: ErrNotifyFailed,
	StageAudit:  ErrAuditFailed,
}

// StageError records which stage failed and why.
type StageError struct {
	Stage Stage
	Err   error
}

func stageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", sentinels[e.Stage], e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches the sentinel for the failed stage.
func (e *StageError) Is(target error) bool {
	s, ok := sentinels[e.Stage]
	return ok && s == target
}

// Detail is the cause message recorded in audit entries and failure emails.
func (e *StageError) Detail() string {
	if e.Err == nil {
		return string(e.Stage) + " failed"
	}
	return e.Err.Error()
}
