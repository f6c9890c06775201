package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehr/patient-service/internal/platform/db"
)

// Allocator hands out identifiers for new records.
type Allocator interface {
	Allocate(ctx context.Context) (PatientID, error)
}

// allocationTx is a fresh serializable transaction that never joins the
// caller's. Under a weaker ambient level two callers could read the same
// maximum.
var allocationTx = db.TxOptions{
	Isolation:   db.Serializable,
	ReadOnly:    true,
	Independent: true,
}

// SequentialAllocator derives the next identifier of the current year from
// the highest one already stored. It only reads; the primary key on insert
// is what finally rules out duplicates.
type SequentialAllocator struct {
	counters CounterStore
	tx       Transactor
	now      func() time.Time
}

func NewSequentialAllocator(counters CounterStore, tx Transactor, now func() time.Time) *SequentialAllocator {
	if now == nil {
		now = time.Now
	}
	return &SequentialAllocator{counters: counters, tx: tx, now: now}
}

func (a *SequentialAllocator) Allocate(ctx context.Context) (PatientID, error) {
	t := a.now()
	if t.IsZero() {
		return "", ErrClock
	}
	year := FormatYear(t.Year())

	var next int
	err := a.tx.InTx(ctx, allocationTx, func(ctx context.Context) error {
		highest, found, err := a.counters.MaxCounterForYear(ctx, year)
		if err != nil {
			return err
		}
		next = nextCounter(highest, found)
		return nil
	})
	if err != nil {
		if db.IsSerializationFailure(err) {
			return "", fmt.Errorf("%w: %v", ErrAllocationConflict, err)
		}
		if errors.Is(err, ErrAllocationConflict) {
			return "", err
		}
		return "", fmt.Errorf("allocate patient id for %s: %w", year, err)
	}

	if next > MaxCounter {
		return "", fmt.Errorf("%w: %s", ErrCounterExhausted, year)
	}
	return FormatPatientID(year, next), nil
}

func nextCounter(highest int, found bool) int {
	if !found {
		return 1
	}
	return highest + 1
}
