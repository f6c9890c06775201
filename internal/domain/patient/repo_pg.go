package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/patient-service/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `patient_id, first_name, last_name, date_of_birth, gender, phone, email,
	address, city, state, zip_code,
	emergency_contact_name, emergency_contact_phone, emergency_contact_relationship,
	blood_group, known_allergies, chronic_conditions,
	status, created_at, created_by, updated_at, updated_by,
	deactivated_at, deactivated_by, activated_at, activated_by, version`

func (r *patientRepoPG) MaxCounterForYear(ctx context.Context, year string) (int, bool, error) {
	var highest *int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT MAX(CAST(SUBSTRING(patient_id FROM 6) AS INTEGER))
		FROM patients
		WHERE patient_id LIKE $1`, yearPattern(year)).Scan(&highest)
	if err != nil {
		return 0, false, fmt.Errorf("max counter for %s: %w", year, err)
	}
	if highest == nil {
		return 0, false, nil
	}
	return *highest, true, nil
}

func (r *patientRepoPG) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patients WHERE phone = $1)`, phone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by phone: %w", err)
	}
	return exists, nil
}

func (r *patientRepoPG) ExistsByPhoneExcluding(ctx context.Context, phone string, excludeID PatientID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patients WHERE phone = $1 AND patient_id <> $2)`,
		phone, string(excludeID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by phone excluding %s: %w", excludeID, err)
	}
	return exists, nil
}

func (r *patientRepoPG) Insert(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (
			patient_id, first_name, last_name, date_of_birth, gender, phone, email,
			address, city, state, zip_code,
			emergency_contact_name, emergency_contact_phone, emergency_contact_relationship,
			blood_group, known_allergies, chronic_conditions,
			status, created_at, created_by, updated_at, updated_by, version
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,
			$8,$9,$10,$11,
			$12,$13,$14,
			$15,$16,$17,
			$18,$19,$20,$21,$22,$23
		)`,
		string(p.ID), p.FirstName, p.LastName, p.DateOfBirth.Time, string(p.Gender), p.Phone, p.Email,
		p.Address, p.City, p.State, p.ZipCode,
		p.EmergencyContactName, p.EmergencyContactPhone, p.EmergencyContactRelationship,
		string(p.BloodGroup), p.KnownAllergies, p.ChronicConditions,
		string(p.Status), p.CreatedAt, p.CreatedBy, p.UpdatedAt, p.UpdatedBy, p.Version,
	)
	if err != nil {
		return insertError(p.ID, err)
	}
	return nil
}

// primaryKeyConstraint is the name PostgreSQL gives the patients primary key.
const primaryKeyConstraint = "patients_pkey"

// insertError classifies a failed insert. Only a primary key collision or a
// serialization failure means the identifier was lost to another writer.
func insertError(id PatientID, err error) error {
	switch {
	case db.IsUniqueViolation(err):
		if name := db.ConstraintName(err); name != "" && name != primaryKeyConstraint {
			return fmt.Errorf("insert patient %s: unique constraint %s: %w", id, name, err)
		}
		return fmt.Errorf("%w: %s already taken", ErrAllocationConflict, id)
	case db.IsSerializationFailure(err):
		return fmt.Errorf("%w: %v", ErrAllocationConflict, err)
	default:
		return fmt.Errorf("insert patient %s: %w", id, err)
	}
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET
			first_name = $3, last_name = $4, date_of_birth = $5, gender = $6, phone = $7, email = $8,
			address = $9, city = $10, state = $11, zip_code = $12,
			emergency_contact_name = $13, emergency_contact_phone = $14, emergency_contact_relationship = $15,
			blood_group = $16, known_allergies = $17, chronic_conditions = $18,
			status = $19, updated_at = $20, updated_by = $21,
			deactivated_at = $22, deactivated_by = $23, activated_at = $24, activated_by = $25,
			version = version + 1
		WHERE patient_id = $1 AND version = $2`,
		string(p.ID), p.Version,
		p.FirstName, p.LastName, p.DateOfBirth.Time, string(p.Gender), p.Phone, p.Email,
		p.Address, p.City, p.State, p.ZipCode,
		p.EmergencyContactName, p.EmergencyContactPhone, p.EmergencyContactRelationship,
		string(p.BloodGroup), p.KnownAllergies, p.ChronicConditions,
		string(p.Status), p.UpdatedAt, p.UpdatedBy,
		p.DeactivatedAt, p.DeactivatedBy, p.ActivatedAt, p.ActivatedBy,
	)
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM patients WHERE patient_id = $1)`, string(p.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("update patient %s: %w", p.ID, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}
	p.Version++
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id PatientID) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, string(id))
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) Search(ctx context.Context, c SearchCriteria) ([]*Patient, int, error) {
	q := buildSearchQuery(c)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(c.Page.Limit(), c.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	return patients, total, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row scanner) (*Patient, error) {
	var (
		p                         Patient
		id, gender, blood, status string
	)
	err := row.Scan(
		&id, &p.FirstName, &p.LastName, &p.DateOfBirth.Time, &gender, &p.Phone, &p.Email,
		&p.Address, &p.City, &p.State, &p.ZipCode,
		&p.EmergencyContactName, &p.EmergencyContactPhone, &p.EmergencyContactRelationship,
		&blood, &p.KnownAllergies, &p.ChronicConditions,
		&status, &p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy,
		&p.DeactivatedAt, &p.DeactivatedBy, &p.ActivatedAt, &p.ActivatedBy, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	p.ID = PatientID(id)
	p.Gender = Gender(gender)
	p.BloodGroup = BloodGroup(blood)
	p.Status = Status(status)
	return &p, nil
}
