package patient

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Accepted phone layouts: +1-XXX-XXX-XXXX, (XXX) XXX-XXXX, XXX-XXX-XXXX.
var phonePattern = regexp.MustCompile(`^(\+1-\d{3}-\d{3}-\d{4}|\(\d{3}\) \d{3}-\d{4}|\d{3}-\d{3}-\d{4})$`)

// ValidPhone reports whether s is in one of the accepted phone layouts.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

type fieldLimit struct {
	field string
	label string
	value *string
	max   int
}

// Validate checks d against the registration and update rules. now bounds
// the date of birth.
func (d *Details) Validate(now time.Time) error {
	ve := &ValidationError{}

	if strings.TrimSpace(d.FirstName) == "" {
		ve.add("firstName", "First name is required")
	}
	if strings.TrimSpace(d.LastName) == "" {
		ve.add("lastName", "Last name is required")
	}

	if d.DateOfBirth.IsZero() {
		ve.add("dateOfBirth", "Date of birth is required")
	} else {
		y, m, day := now.Date()
		if d.DateOfBirth.After(NewDate(y, m, day).Time) {
			ve.add("dateOfBirth", "Date of birth must not be in the future")
		}
	}

	if d.Gender == "" {
		ve.add("gender", "Gender is required")
	} else if !d.Gender.Valid() {
		ve.add("gender", "Gender must be one of MALE, FEMALE, OTHER")
	}

	phone := strings.TrimSpace(d.Phone)
	if phone == "" {
		ve.add("phoneNumber", "Phone number is required")
	} else if !ValidPhone(phone) {
		ve.add("phoneNumber", "Phone number must be in format +1-XXX-XXX-XXXX, (XXX) XXX-XXXX, or XXX-XXX-XXXX")
	}

	if d.Email != nil && *d.Email != "" && !validEmail(*d.Email) {
		ve.add("email", "Invalid email format")
	}

	if d.BloodGroup != "" && !d.BloodGroup.Valid() {
		ve.add("bloodGroup", "Invalid blood group")
	}

	first, last := d.FirstName, d.LastName
	limits := []fieldLimit{
		{"firstName", "First name", &first, 50},
		{"lastName", "Last name", &last, 50},
		{"email", "Email", d.Email, 100},
		{"address", "Address", d.Address, 255},
		{"city", "City", d.City, 100},
		{"state", "State", d.State, 100},
		{"zipCode", "Zip code", d.ZipCode, 20},
		{"emergencyContactName", "Emergency contact name", d.EmergencyContactName, 100},
		{"emergencyContactPhone", "Emergency contact phone", d.EmergencyContactPhone, 20},
		{"emergencyContactRelationship", "Emergency contact relationship", d.EmergencyContactRelationship, 50},
	}
	for _, l := range limits {
		if l.value == nil {
			continue
		}
		if utf8.RuneCountInString(*l.value) > l.max {
			ve.add(l.field, l.label+" must not exceed "+strconv.Itoa(l.max)+" characters")
		}
	}

	return ve.orNil()
}
