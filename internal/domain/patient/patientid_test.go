package patient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFormatPatientID(t *testing.T) {
	assert.Equal(t, PatientID("P2026001"), FormatPatientID("2026", 1))
	assert.Equal(t, PatientID("P2026042"), FormatPatientID("2026", 42))
	assert.Equal(t, PatientID("P2026999"), FormatPatientID("2026", MaxCounter))
}

func TestParsePatientID(t *testing.T) {
	year, counter, err := ParsePatientID("P2025017")
	require.NoError(t, err)
	assert.Equal(t, "2025", year)
	assert.Equal(t, 17, counter)
}

func TestParsePatientID_Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"P2026",
		"X2026001",
		"p2026001",
		"P2026000",
		"P20260011",
		"P20a6001",
		"P2026-01",
		"P２026001",
	} {
		_, _, err := ParsePatientID(s)
		assert.Errorf(t, err, "expected %q to be rejected", s)
		assert.False(t, PatientID(s).Valid(), s)
	}
}

func TestPatientID_FormatParseProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		year := rapid.IntRange(1000, 9999).Draw(t, "year")
		counter := rapid.IntRange(1, MaxCounter).Draw(t, "counter")
		y := FormatYear(year)

		id := FormatPatientID(y, counter)
		if len(id) != 8 {
			t.Fatalf("id %q has length %d", id, len(id))
		}
		gotYear, gotCounter, err := ParsePatientID(string(id))
		if err != nil {
			t.Fatalf("parse %q: %v", id, err)
		}
		if gotYear != y || gotCounter != counter {
			t.Fatalf("parse %q = (%s, %d), want (%s, %d)", id, gotYear, gotCounter, y, counter)
		}
	})
}

func TestPatientID_OrderingMatchesCounter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.IntRange(1, MaxCounter).Draw(t, "a")
		b := rapid.IntRange(1, MaxCounter).Draw(t, "b")
		ida, idb := FormatPatientID("2026", a), FormatPatientID("2026", b)
		if (a < b) != (ida < idb) {
			t.Fatalf("lexical order of %s and %s disagrees with %d < %d", ida, idb, a, b)
		}
	})
}

func TestYearPattern(t *testing.T) {
	assert.Equal(t, "P2026%", yearPattern("2026"))
}
