package patient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAllocationConflict means two writers raced for the same identifier,
	// either inside the serializable read or on the primary key at insert
	// time. Retrying the whole allocate and insert sequence is safe.
	ErrAllocationConflict = errors.New("patient id allocation conflict")

	// ErrAllocationExhausted wraps the last conflict once the retry budget is spent.
	ErrAllocationExhausted = errors.New("patient id allocation retries exhausted")

	// ErrCounterExhausted means every counter for the current year is taken.
	ErrCounterExhausted = errors.New("patient id counter exhausted for year")

	ErrClock                  = errors.New("system clock unavailable")
	ErrNotFound               = errors.New("patient not found")
	ErrStatusConflict         = errors.New("patient status conflict")
	ErrConcurrentModification = errors.New("patient record was modified concurrently")
)

// StatusConflictError reports an activate or deactivate on a record that is
// already in the target state.
type StatusConflictError struct {
	ID     PatientID
	Status Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("patient %s is already %s", e.ID, strings.ToLower(string(e.Status)))
}

func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

// ValidationError collects per-field messages for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
