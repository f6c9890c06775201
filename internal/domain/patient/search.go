package patient

import (
	"strings"

	"github.com/ehr/patient-service/internal/platform/db"
	"github.com/ehr/patient-service/pkg/pagination"
)

// SearchCriteria filters the record list. Zero values mean "no filter".
type SearchCriteria struct {
	Search     string
	Status     StatusFilter
	Gender     Gender
	BloodGroup BloodGroup
	Page       pagination.Params
}

// Validate rejects enum values storage would never match.
func (c SearchCriteria) Validate() error {
	ve := &ValidationError{}
	if c.Status != "" && !c.Status.Valid() {
		ve.add("status", "Status must be one of ALL, ACTIVE, INACTIVE")
	}
	if c.Gender != "" && !c.Gender.Valid() {
		ve.add("gender", "Gender must be one of MALE, FEMALE, OTHER")
	}
	if c.BloodGroup != "" && !c.BloodGroup.Valid() {
		ve.add("bloodGroup", "Invalid blood group")
	}
	return ve.orNil()
}

// searchColumns are matched case-insensitively by the free-text term.
var searchColumns = []string{"patient_id", "first_name", "last_name", "phone", "email"}

// buildSearchQuery turns c into a filtered, newest-first query.
func buildSearchQuery(c SearchCriteria) *db.Query {
	q := db.NewQuery("patients", patientCols)

	switch c.Status {
	case StatusFilterActive:
		q.AddEqual("status", string(StatusActive))
	case StatusFilterInactive:
		q.AddEqual("status", string(StatusInactive))
	}
	if c.Gender != "" {
		q.AddEqual("gender", string(c.Gender))
	}
	if c.BloodGroup != "" {
		q.AddEqual("blood_group", string(c.BloodGroup))
	}
	if term := strings.TrimSpace(c.Search); term != "" {
		q.AddContainsAny(term, searchColumns...)
	}

	q.OrderBy("created_at DESC, patient_id DESC")
	return q
}
