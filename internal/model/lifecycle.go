package model

import (
	"github.com/rotisserie/eris"
)

// DocumentStatus is the persisted processing state of a document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "UPLOADED"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusProcessed  DocumentStatus = "PROCESSED"
	StatusFailed     DocumentStatus = "FAILED"
)

// Terminal reports whether the status ends a processing run.
func (s DocumentStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// transitions lists the legal status moves. PROCESSED and FAILED may only
// re-enter PROCESSING at the start of a new run.
var transitions = map[DocumentStatus][]DocumentStatus{
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusFailed},
	StatusProcessed:  {StatusProcessing},
	StatusFailed:     {StatusProcessing},
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to DocumentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrIllegalTransition is returned for a status move outside the table.
var ErrIllegalTransition = eris.New("model: illegal status transition")

// Lifecycle tracks the status of one document during a single run.
type Lifecycle struct {
	status  DocumentStatus
	started bool
}

// NewLifecycle starts tracking from the persisted status. An empty status is
// treated as UPLOADED.
func NewLifecycle(current DocumentStatus) *Lifecycle {
	if current == "" {
		current = StatusUploaded
	}
	return &Lifecycle{status: current}
}

// Status returns the current status.
func (l *Lifecycle) Status() DocumentStatus { return l.status }

// Begin moves the document into PROCESSING. A document left in PROCESSING by
// an interrupted earlier run is restarted.
func (l *Lifecycle) Begin() error {
	if l.started {
		return eris.Wrapf(ErrIllegalTransition, "%s -> %s (run already started)", l.status, StatusProcessing)
	}
	if l.status != StatusProcessing && !CanTransition(l.status, StatusProcessing) {
		return eris.Wrapf(ErrIllegalTransition, "%s -> %s", l.status, StatusProcessing)
	}
	l.status = StatusProcessing
	l.started = true
	return nil
}

// Finish moves a started run to PROCESSED or FAILED.
func (l *Lifecycle) Finish(to DocumentStatus) error {
	if !l.started || !to.Terminal() || !CanTransition(l.status, to) {
		return eris.Wrapf(ErrIllegalTransition, "%s -> %s", l.status, to)
	}
	l.status = to
	return nil
}

// ValidationStatus is orthogonal to DocumentStatus and signals human review.
type ValidationStatus string

const (
	ValidationPending     ValidationStatus = "PENDING"
	ValidationNeedsReview ValidationStatus = "NEEDS_REVIEW"
)

// ValidationFlag explains why a document needs review.
type ValidationFlag string

const (
	FlagDuplicateDocument ValidationFlag = "DUPLICATE_DOCUMENT"
	FlagWrongTenant       ValidationFlag = "WRONG_TENANT"
)

// Validation accumulates flags for one run. Flags are kept in insertion order
// without repeats.
type Validation struct {
	flags []ValidationFlag
}

// Add records a flag once.
func (v *Validation) Add(f ValidationFlag) {
	if v.Has(f) {
		return
	}
	v.flags = append(v.flags, f)
}

// Has reports whether f was recorded.
func (v *Validation) Has(f ValidationFlag) bool {
	for _, x := range v.flags {
		if x == f {
			return true
		}
	}
	return false
}

// Flags returns a copy of the recorded flags.
func (v *Validation) Flags() []ValidationFlag {
	return append([]ValidationFlag(nil), v.flags...)
}

// Status is NEEDS_REVIEW once any flag is recorded.
func (v *Validation) Status() ValidationStatus {
	if len(v.flags) > 0 {
		return ValidationNeedsReview
	}
	return ValidationPending
}
