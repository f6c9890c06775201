package patient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

type BloodGroup string

const (
	BloodGroupAPos    BloodGroup = "A_POS"
	BloodGroupANeg    BloodGroup = "A_NEG"
	BloodGroupBPos    BloodGroup = "B_POS"
	BloodGroupBNeg    BloodGroup = "B_NEG"
	BloodGroupABPos   BloodGroup = "AB_POS"
	BloodGroupABNeg   BloodGroup = "AB_NEG"
	BloodGroupOPos    BloodGroup = "O_POS"
	BloodGroupONeg    BloodGroup = "O_NEG"
	BloodGroupUnknown BloodGroup = "UNKNOWN"
)

var bloodGroupDisplay = map[BloodGroup]string{
	BloodGroupAPos:    "A+",
	BloodGroupANeg:    "A-",
	BloodGroupBPos:    "B+",
	BloodGroupBNeg:    "B-",
	BloodGroupABPos:   "AB+",
	BloodGroupABNeg:   "AB-",
	BloodGroupOPos:    "O+",
	BloodGroupONeg:    "O-",
	BloodGroupUnknown: "Unknown",
}

func (b BloodGroup) Valid() bool {
	_, ok := bloodGroupDisplay[b]
	return ok
}

// Display returns the clinical notation, e.g. "AB+".
func (b BloodGroup) Display() string {
	return bloodGroupDisplay[b]
}

// Status is the persisted lifecycle state of a record.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// StatusFilter is the query-side status selector; ALL never reaches storage.
type StatusFilter string

const (
	StatusFilterAll      StatusFilter = "ALL"
	StatusFilterActive   StatusFilter = "ACTIVE"
	StatusFilterInactive StatusFilter = "INACTIVE"
)

func (f StatusFilter) Valid() bool {
	switch f {
	case StatusFilterAll, StatusFilterActive, StatusFilterInactive:
		return true
	}
	return false
}

const dateLayout = "2006-01-02"

// Date is a calendar date carried as YYYY-MM-DD on the wire.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("date must be formatted YYYY-MM-DD")
	}
	d.Time = t
	return nil
}

// AgeAt returns the number of whole years between d and now.
func (d Date) AgeAt(now time.Time) int {
	if d.IsZero() {
		return 0
	}
	y, m, day := now.Date()
	age := y - d.Year()
	if m < d.Month() || (m == d.Month() && day < d.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// Patient is the stored record. Demographic, contact and medical fields are
// PHI and must not be written to logs.
type Patient struct {
	ID          PatientID
	FirstName   string
	LastName    string
	DateOfBirth Date
	Gender      Gender
	Phone       string
	Email       *string

	Address *string
	City    *string
	State   *string
	ZipCode *string

	EmergencyContactName         *string
	EmergencyContactPhone        *string
	EmergencyContactRelationship *string

	BloodGroup        BloodGroup
	KnownAllergies    *string
	ChronicConditions *string

	Status        Status
	CreatedAt     time.Time
	CreatedBy     string
	UpdatedAt     time.Time
	UpdatedBy     string
	DeactivatedAt *time.Time
	DeactivatedBy *string
	ActivatedAt   *time.Time
	ActivatedBy   *string

	Version int
}

// Details holds the caller-editable fields shared by registration and update.
type Details struct {
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	DateOfBirth Date    `json:"dateOfBirth"`
	Gender      Gender  `json:"gender"`
	Phone       string  `json:"phoneNumber"`
	Email       *string `json:"email,omitempty"`

	Address *string `json:"address,omitempty"`
	City    *string `json:"city,omitempty"`
	State   *string `json:"state,omitempty"`
	ZipCode *string `json:"zipCode,omitempty"`

	EmergencyContactName         *string `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone        *string `json:"emergencyContactPhone,omitempty"`
	EmergencyContactRelationship *string `json:"emergencyContactRelationship,omitempty"`

	BloodGroup        BloodGroup `json:"bloodGroup,omitempty"`
	KnownAllergies    *string    `json:"knownAllergies,omitempty"`
	ChronicConditions *string    `json:"chronicConditions,omitempty"`
}

type RegisterRequest struct {
	Details
}

// UpdateRequest replaces the editable fields of a record. Version, when
// present, must match the stored version.
type UpdateRequest struct {
	Details
	Version *int `json:"version,omitempty"`
}

// apply copies d onto p, trimming strings, dropping blank optional fields
// and defaulting the blood group.
func (d *Details) apply(p *Patient) {
	p.FirstName = strings.TrimSpace(d.FirstName)
	p.LastName = strings.TrimSpace(d.LastName)
	p.DateOfBirth = d.DateOfBirth
	p.Gender = d.Gender
	p.Phone = strings.TrimSpace(d.Phone)
	p.Email = trimOptional(d.Email)
	p.Address = trimOptional(d.Address)
	p.City = trimOptional(d.City)
	p.State = trimOptional(d.State)
	p.ZipCode = trimOptional(d.ZipCode)
	p.EmergencyContactName = trimOptional(d.EmergencyContactName)
	p.EmergencyContactPhone = trimOptional(d.EmergencyContactPhone)
	p.EmergencyContactRelationship = trimOptional(d.EmergencyContactRelationship)
	p.BloodGroup = d.BloodGroup
	if p.BloodGroup == "" {
		p.BloodGroup = BloodGroupUnknown
	}
	p.KnownAllergies = trimOptional(d.KnownAllergies)
	p.ChronicConditions = trimOptional(d.ChronicConditions)
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Response is the full API view of a record.
type Response struct {
	PatientID   PatientID `json:"patientId"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth Date      `json:"dateOfBirth"`
	Age         int       `json:"age"`
	Gender      Gender    `json:"gender"`
	Phone       string    `json:"phoneNumber"`
	Email       *string   `json:"email,omitempty"`

	Address *string `json:"address,omitempty"`
	City    *string `json:"city,omitempty"`
	State   *string `json:"state,omitempty"`
	ZipCode *string `json:"zipCode,omitempty"`

	EmergencyContactName         *string `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone        *string `json:"emergencyContactPhone,omitempty"`
	EmergencyContactRelationship *string `json:"emergencyContactRelationship,omitempty"`

	BloodGroup        BloodGroup `json:"bloodGroup"`
	BloodGroupDisplay string     `json:"bloodGroupDisplay"`
	KnownAllergies    *string    `json:"knownAllergies,omitempty"`
	ChronicConditions *string    `json:"chronicConditions,omitempty"`

	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	CreatedBy     string     `json:"createdBy"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	UpdatedBy     string     `json:"updatedBy"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
	DeactivatedBy *string    `json:"deactivatedBy,omitempty"`
	ActivatedAt   *time.Time `json:"activatedAt,omitempty"`
	ActivatedBy   *string    `json:"activatedBy,omitempty"`
	Version       int        `json:"version"`

	DuplicatePhoneWarning bool `json:"duplicatePhoneWarning,omitempty"`
}

// Summary is the row shape returned by search.
type Summary struct {
	PatientID PatientID `json:"patientId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Age       int       `json:"age"`
	Gender    Gender    `json:"gender"`
	Phone     string    `json:"phoneNumber"`
	Status    Status    `json:"status"`
}

func (p *Patient) ToResponse(now time.Time) *Response {
	return &Response{
		PatientID:                    p.ID,
		FirstName:                    p.FirstName,
		LastName:                     p.LastName,
		DateOfBirth:                  p.DateOfBirth,
		Age:                          p.DateOfBirth.AgeAt(now),
		Gender:                       p.Gender,
		Phone:                        p.Phone,
		Email:                        p.Email,
		Address:                      p.Address,
		City:                         p.City,
		State:                        p.State,
		ZipCode:                      p.ZipCode,
		EmergencyContactName:         p.EmergencyContactName,
		EmergencyContactPhone:        p.EmergencyContactPhone,
		EmergencyContactRelationship: p.EmergencyContactRelationship,
		BloodGroup:                   p.BloodGroup,
		BloodGroupDisplay:            p.BloodGroup.Display(),
		KnownAllergies:               p.KnownAllergies,
		ChronicConditions:            p.ChronicConditions,
		Status:                       p.Status,
		CreatedAt:                    p.CreatedAt,
		CreatedBy:                    p.CreatedBy,
		UpdatedAt:                    p.UpdatedAt,
		UpdatedBy:                    p.UpdatedBy,
		DeactivatedAt:                p.DeactivatedAt,
		DeactivatedBy:                p.DeactivatedBy,
		ActivatedAt:                  p.ActivatedAt,
		ActivatedBy:                  p.ActivatedBy,
		Version:                      p.Version,
	}
}

func (p *Patient) ToSummary(now time.Time) Summary {
	return Summary{
		PatientID: p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Age:       p.DateOfBirth.AgeAt(now),
		Gender:    p.Gender,
		Phone:     p.Phone,
		Status:    p.Status,
	}
}
