package patient

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/patient-service/internal/platform/db"
)

var testNow = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// memRepo is an in-memory Repository with primary key and version checks.
type memRepo struct {
	mu   sync.Mutex
	rows map[PatientID]*Patient

	phoneErr    error
	maxErr      error
	insertErr   error
	getErr      error
	insertCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[PatientID]*Patient)}
}

func clonePatient(p *Patient) *Patient {
	cp := *p
	return &cp
}

func (r *memRepo) MaxCounterForYear(_ context.Context, year string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxErr != nil {
		return 0, false, r.maxErr
	}

	highest, found := 0, false
	for id := range r.rows {
		y, n, err := ParsePatientID(string(id))
		if err != nil || y != year {
			continue
		}
		if !found || n > highest {
			highest, found = n, true
		}
	}
	return highest, found, nil
}

func (r *memRepo) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	return r.ExistsByPhoneExcluding(ctx, phone, "")
}

func (r *memRepo) ExistsByPhoneExcluding(_ context.Context, phone string, excludeID PatientID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phoneErr != nil {
		return false, r.phoneErr
	}
	for id, p := range r.rows {
		if id != excludeID && p.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) Insert(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, taken := r.rows[p.ID]; taken {
		return ErrAllocationConflict
	}
	r.rows[p.ID] = clonePatient(p)
	return nil
}

func (r *memRepo) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[p.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != p.Version {
		return ErrConcurrentModification
	}
	p.Version++
	r.rows[p.ID] = clonePatient(p)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id PatientID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePatient(p), nil
}

func (r *memRepo) Search(_ context.Context, c SearchCriteria) ([]*Patient, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	term := strings.ToLower(strings.TrimSpace(c.Search))
	var matched []*Patient
	for _, p := range r.rows {
		switch c.Status {
		case StatusFilterActive:
			if p.Status != StatusActive {
				continue
			}
		case StatusFilterInactive:
			if p.Status != StatusInactive {
				continue
			}
		}
		if c.Gender != "" && p.Gender != c.Gender {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(string(p.ID)+" "+p.FirstName+" "+p.LastName+" "+p.Phone), term) {
			continue
		}
		matched = append(matched, clonePatient(p))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := c.Page.Offset()
	if start > total {
		start = total
	}
	end := start + c.Page.Limit()
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// passTx runs fn directly and records the options it was asked for.
type passTx struct {
	mu   sync.Mutex
	opts []db.TxOptions
	err  error
}

func (t *passTx) InTx(ctx context.Context, opts db.TxOptions, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	t.opts = append(t.opts, opts)
	err := t.err
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx)
}

type capturedEvent struct {
	routingKey string
	event      Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, _ := event.(Event)
	p.events = append(p.events, capturedEvent{routingKey: routingKey, event: ev})
	return p.err
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.routingKey
	}
	return out
}

type testEnv struct {
	svc     *Service
	repo    *memRepo
	tx      *passTx
	events  *recordingPublisher
	metrics *Metrics
}

func newTestEnv(opts ...Option) *testEnv {
	repo := newMemRepo()
	tx := &passTx{}
	events := &recordingPublisher{}
	metrics := NewMetrics(nil)
	alloc := NewSequentialAllocator(repo, tx, fixedClock(testNow))

	base := []Option{
		WithClock(fixedClock(testNow)),
		WithEvents(events),
		WithMetrics(metrics),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}),
	}
	svc := NewService(repo, alloc, tx, zerolog.Nop(), append(base, opts...)...)
	return &testEnv{svc: svc, repo: repo, tx: tx, events: events, metrics: metrics}
}

func strPtr(s string) *string { return &s }

func validDetails() Details {
	return Details{
		FirstName:   "Jane",
		LastName:    "Doe",
		DateOfBirth: NewDate(1990, time.June, 1),
		Gender:      GenderFemale,
		Phone:       "555-867-5309",
		Email:       strPtr("jane.doe@example.com"),
	}
}

func registerRequest(mod ...func(*Details)) *RegisterRequest {
	d := validDetails()
	for _, m := range mod {
		m(&d)
	}
	return &RegisterRequest{Details: d}
}
