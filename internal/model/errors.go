package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicatePolicy        = errors.New("staff-specific commission policy already exists")
	ErrNoPolicy               = errors.New("no matching commission policy")
)

// ValidationError collects field level problems found before any side effect.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

// NewValidationError returns an empty collector.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Invalid is a single-field ValidationError.
func Invalid(field, msg string) error {
	v := NewValidationError()
	v.Add(field, msg)
	return v
}

// Add records msg for field; the first message for a field is kept.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = msg
}

func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// Err returns e as an error, or nil when nothing was recorded.
func (e *ValidationError) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictKind names the availability rule that rejected a request.
type ConflictKind string

const (
	ConflictTimeOff      ConflictKind = "TIME_OFF"
	ConflictReservation  ConflictKind = "RESERVATION"
	ConflictDoubleBook   ConflictKind = "DOUBLE_BOOK"
	ConflictCapacity     ConflictKind = "CAPACITY"
	ConflictOutsideHours ConflictKind = "OUTSIDE_HOURS"
)

// ConflictError reports the first blocking record for a requested interval.
type ConflictError struct {
	Kind       ConflictKind `json:"kind"`
	Detail     string       `json:"detail"`
	BlockingID string       `json:"blocking_id,omitempty"`
}

func (e *ConflictError) Error() string {
	if e.BlockingID != "" {
		return fmt.Sprintf("conflict %s: %s (blocked by %s)", e.Kind, e.Detail, e.BlockingID)
	}
	return fmt.Sprintf("conflict %s: %s", e.Kind, e.Detail)
}

// AssignmentConflictError lists every service already held by another resource of the branch.
type AssignmentConflictError struct {
	ResourceID string   `json:"resource_id"`
	BranchID   string   `json:"branch_id"`
	Conflicts  []string `json:"conflicts"`
}

func (e *AssignmentConflictError) Error() string {
	return fmt.Sprintf("services already assigned in branch %s: %s", e.BranchID, strings.Join(e.Conflicts, ", "))
}

// IntegrityWarning describes inconsistent data that was resolved by a tie-break.
// It is logged and counted, never returned to callers.
type IntegrityWarning struct {
	Kind   string
	Detail string
	IDs    []string
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("%s: %s [%s]", w.Kind, w.Detail, strings.Join(w.IDs, ","))
}
