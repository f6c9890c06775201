package patient

import (
	"context"

	"github.com/ehr/patient-service/internal/platform/db"
)

// CounterStore is the read the allocator needs.
type CounterStore interface {
	// MaxCounterForYear returns the highest counter among identifiers of the
	// given four-digit year; found is false when the year has none.
	MaxCounterForYear(ctx context.Context, year string) (highest int, found bool, err error)
}

// PhoneIndex answers the advisory duplicate-phone question.
type PhoneIndex interface {
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	ExistsByPhoneExcluding(ctx context.Context, phone string, excludeID PatientID) (bool, error)
}

type Repository interface {
	CounterStore
	PhoneIndex

	// Insert stores a new record. A primary key collision is reported as
	// ErrAllocationConflict.
	Insert(ctx context.Context, p *Patient) error
	// Update writes p if its Version still matches the stored one and bumps
	// Version on success.
	Update(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id PatientID) (*Patient, error)
	Search(ctx context.Context, c SearchCriteria) ([]*Patient, int, error)
}

// Transactor runs fn as one unit of work; see db.Transactor.
type Transactor interface {
	InTx(ctx context.Context, opts db.TxOptions, fn func(ctx context.Context) error) error
}
