package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/patient-service/internal/platform/db"
	"github.com/ehr/patient-service/pkg/pagination"
)

// SystemActor is recorded when a write carries no caller identity.
const SystemActor = "SYSTEM"

const tracerName = "github.com/ehr/patient-service/internal/domain/patient"

// writeTx is the ambient unit of work for inserts and updates.
var writeTx = db.TxOptions{Isolation: db.ReadCommitted}

// RetryPolicy bounds how often a registration reruns allocate and insert
// after losing a race.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 25 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Result is a written record plus the advisory duplicate-phone flag.
type Result struct {
	Patient               *Patient
	DuplicatePhoneWarning bool
}

type Service struct {
	repo    Repository
	alloc   Allocator
	tx      Transactor
	events  EventPublisher
	metrics *Metrics
	logger  zerolog.Logger
	retry   RetryPolicy
	now     func() time.Time
	tracer  trace.Tracer
}

type Option func(*Service)

func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func NewService(repo Repository, alloc Allocator, tx Transactor, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		alloc:  alloc,
		tx:     tx,
		events: nopPublisher{},
		logger: logger.With().Str("component", "patient").Logger(),
		retry:  DefaultRetryPolicy(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// timestamp is the current time at the precision storage keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func normalizeActor(actorID string) string {
	if a := strings.TrimSpace(actorID); a != "" {
		return a
	}
	return SystemActor
}

// Register validates req, allocates an identifier and stores the new record.
// Losing the identifier race to another writer reruns allocate and insert
// under the retry policy; the duplicate-phone flag never blocks the write.
func (s *Service) Register(ctx context.Context, req *RegisterRequest, actorID string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "patient.Register")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveRegister(start)

	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}
	actorID = normalizeActor(actorID)

	duplicate := s.duplicatePhone(ctx, func(ctx context.Context) (bool, error) {
		return s.repo.ExistsByPhone(ctx, strings.TrimSpace(req.Phone))
	})

	var (
		saved   *Patient
		attempt int
	)
	op := func() error {
		attempt++
		// Allocation runs in its own serializable transaction, before the
		// write transaction takes a connection.
		id, err := s.alloc.Allocate(ctx)
		if err != nil {
			return s.classifyAttempt(err, attempt)
		}

		p := newPatient(id, &req.Details, actorID, s.timestamp())
		err = s.tx.InTx(ctx, writeTx, func(ctx context.Context) error {
			return s.repo.Insert(ctx, p)
		})
		if err != nil {
			return s.classifyAttempt(err, attempt)
		}
		saved = p
		return nil
	}

	if err := backoff.Retry(op, s.retry.backOff(ctx)); err != nil {
		if errors.Is(err, ErrAllocationConflict) {
			s.metrics.AllocationExhausted.Inc()
			err = fmt.Errorf("%w after %d attempts: %w", ErrAllocationExhausted, attempt, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "register failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("patient.id", string(saved.ID)),
		attribute.Int("patient.allocation_attempts", attempt),
		attribute.Bool("patient.duplicate_phone", duplicate),
	)
	s.metrics.Registered.Inc()
	if duplicate {
		s.metrics.DuplicatePhoneWarnings.Inc()
		s.logger.Warn().Str("patient_id", string(saved.ID)).Msg("duplicate phone detected for new registration")
	}
	s.logger.Info().
		Str("patient_id", string(saved.ID)).
		Str("actor_id", actorID).
		Int("attempts", attempt).
		Msg("patient registered")

	s.publish(ctx, EventRegistered, saved, actorID)
	return &Result{Patient: saved, DuplicatePhoneWarning: duplicate}, nil
}

// classifyAttempt marks identifier races retryable and everything else permanent.
func (s *Service) classifyAttempt(err error, attempt int) error {
	if errors.Is(err, ErrAllocationConflict) {
		s.metrics.AllocationConflicts.Inc()
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("patient id allocation conflict")
		return err
	}
	return backoff.Permanent(err)
}

func newPatient(id PatientID, d *Details, actorID string, now time.Time) *Patient {
	p := &Patient{
		ID:        id,
		Status:    StatusActive,
		CreatedAt: now,
		CreatedBy: actorID,
		UpdatedAt: now,
		UpdatedBy: actorID,
	}
	d.apply(p)
	return p
}

// duplicatePhone runs an advisory lookup. Lookup failures are logged and
// counted and read as "no duplicate".
func (s *Service) duplicatePhone(ctx context.Context, lookup func(context.Context) (bool, error)) bool {
	exists, err := lookup(ctx)
	if err != nil {
		s.metrics.DuplicateCheckFailures.Inc()
		s.logger.Warn().Err(err).Msg("duplicate phone check failed, continuing without warning")
		return false
	}
	return exists
}

func (s *Service) Get(ctx context.Context, id PatientID) (*Patient, error) {
	if !id.Valid() {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// Update replaces the editable fields of a record. Status is left alone.
func (s *Service) Update(ctx context.Context, id PatientID, req *UpdateRequest, actorID string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "patient.Update", trace.WithAttributes(attribute.String("patient.id", string(id))))
	defer span.End()

	if !id.Valid() {
		return nil, ErrNotFound
	}
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}
	actorID = normalizeActor(actorID)

	duplicate := s.duplicatePhone(ctx, func(ctx context.Context) (bool, error) {
		return s.repo.ExistsByPhoneExcluding(ctx, strings.TrimSpace(req.Phone), id)
	})

	var saved *Patient
	err := s.tx.InTx(ctx, writeTx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Version != nil && *req.Version != p.Version {
			return ErrConcurrentModification
		}

		req.Details.apply(p)
		p.UpdatedAt = s.timestamp()
		p.UpdatedBy = actorID

		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		saved = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if duplicate {
		s.metrics.DuplicatePhoneWarnings.Inc()
		s.logger.Warn().Str("patient_id", string(id)).Msg("duplicate phone detected during update")
	}
	s.logger.Info().Str("patient_id", string(id)).Str("actor_id", actorID).Msg("patient updated")

	s.publish(ctx, EventUpdated, saved, actorID)
	return &Result{Patient: saved, DuplicatePhoneWarning: duplicate}, nil
}

// Deactivate moves an active record to inactive.
func (s *Service) Deactivate(ctx context.Context, id PatientID, actorID string) (*Patient, error) {
	return s.transition(ctx, id, StatusInactive, actorID)
}

// Activate moves an inactive record to active.
func (s *Service) Activate(ctx context.Context, id PatientID, actorID string) (*Patient, error) {
	return s.transition(ctx, id, StatusActive, actorID)
}

func (s *Service) transition(ctx context.Context, id PatientID, to Status, actorID string) (*Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient.Transition", trace.WithAttributes(
		attribute.String("patient.id", string(id)),
		attribute.String("patient.status", string(to)),
	))
	defer span.End()

	if !id.Valid() {
		return nil, ErrNotFound
	}
	actorID = normalizeActor(actorID)

	var saved *Patient
	err := s.tx.InTx(ctx, writeTx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == to {
			return &StatusConflictError{ID: id, Status: to}
		}

		now := s.timestamp()
		actor := actorID
		p.Status = to
		switch to {
		case StatusInactive:
			p.DeactivatedAt = &now
			p.DeactivatedBy = &actor
		case StatusActive:
			p.ActivatedAt = &now
			p.ActivatedBy = &actor
		}
		p.UpdatedAt = now
		p.UpdatedBy = actorID

		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		saved = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.IncStatusTransition(to)
	s.logger.Info().
		Str("patient_id", string(id)).
		Str("actor_id", actorID).
		Str("status", string(to)).
		Msg("patient status changed")

	s.publish(ctx, EventStatusChanged, saved, actorID)
	return saved, nil
}

// Search returns one page of summaries, newest first.
func (s *Service) Search(ctx context.Context, c SearchCriteria) (*pagination.Page[Summary], error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	patients, total, err := s.repo.Search(ctx, c)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]Summary, len(patients))
	for i, p := range patients {
		out[i] = p.ToSummary(now)
	}
	return pagination.NewPage(out, total, c.Page), nil
}

// NextID reports the identifier the allocator would hand out now. Nothing
// is reserved.
func (s *Service) NextID(ctx context.Context) (PatientID, error) {
	return s.alloc.Allocate(ctx)
}

// Response renders p for the API with its age as of now.
func (s *Service) Response(p *Patient, duplicatePhone bool) *Response {
	resp := p.ToResponse(s.now())
	resp.DuplicatePhoneWarning = duplicatePhone
	return resp
}

// publish is best effort: the record is already committed.
func (s *Service) publish(ctx context.Context, routingKey string, p *Patient, actorID string) {
	ev := newEvent(routingKey, p, actorID, s.timestamp())
	if err := s.events.Publish(ctx, routingKey, ev); err != nil {
		s.logger.Error().Err(err).
			Str("patient_id", string(p.ID)).
			Str("event", routingKey).
			Msg("failed to publish patient event")
	}
}
