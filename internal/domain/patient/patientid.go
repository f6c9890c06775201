package patient

import (
	"fmt"
	"strconv"
)

// PatientID is the year-scoped business key of a patient record, e.g. P2026001.
type PatientID string

const (
	idPrefix     = "P"
	yearDigits   = 4
	counterWidth = 3
	idHeadLen    = len(idPrefix) + yearDigits

	// MaxCounter is the last counter that fits the three-digit field.
	MaxCounter = 999
)

func (id PatientID) String() string { return string(id) }

// FormatYear renders a calendar year as the four-digit identifier field.
func FormatYear(year int) string {
	return fmt.Sprintf("%0*d", yearDigits, year)
}

// FormatPatientID renders P<year><counter> with the counter zero padded.
func FormatPatientID(year string, counter int) PatientID {
	return PatientID(fmt.Sprintf("%s%s%0*d", idPrefix, year, counterWidth, counter))
}

// ParsePatientID splits id into its year and counter.
func ParsePatientID(s string) (year string, counter int, err error) {
	if len(s) != idHeadLen+counterWidth || s[:len(idPrefix)] != idPrefix {
		return "", 0, fmt.Errorf("invalid patient id %q", s)
	}
	year = s[len(idPrefix):idHeadLen]
	if !allDigits(year) || !allDigits(s[idHeadLen:]) {
		return "", 0, fmt.Errorf("invalid patient id %q", s)
	}
	counter, err = strconv.Atoi(s[idHeadLen:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid patient id %q: %w", s, err)
	}
	if counter < 1 {
		return "", 0, fmt.Errorf("invalid patient id %q: counter starts at 1", s)
	}
	return year, counter, nil
}

// Valid reports whether id is well formed.
func (id PatientID) Valid() bool {
	_, _, err := ParsePatientID(string(id))
	return err == nil
}

// yearPattern is the LIKE pattern matching every identifier of year.
func yearPattern(year string) string {
	return idPrefix + year + "%"
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
