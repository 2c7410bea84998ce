package kyc

import (
	"math"
	"testing"
	"time"
)

func TestExtractFieldsLabeled(t *testing.T) {
	text := `REPUBLIKA NG PILIPINAS PHILIPPINE IDENTIFICATION CARD
	SURNAME: DELA CRUZ GIVEN NAMES: JUAN MIGUEL MIDDLE NAME: SANTOS
	DATE OF BIRTH: 15/06/1990 PCN: 1234 5678 9012 3456
	ADDRESS: 123 RIZAL ST BRGY MALINIS QUEZON CITY SEX: M
	PLACE OF BIRTH: MANILA NATIONALITY: FILIPINO`

	f := ExtractFields(text, "NATIONAL_ID", 0.8)

	if f.LastName.Value != "Dela Cruz" {
		t.Errorf("last name = %q", f.LastName.Value)
	}
	if f.FirstName.Value != "Juan Miguel" {
		t.Errorf("first name = %q", f.FirstName.Value)
	}
	if f.MiddleName.Value != "Santos" {
		t.Errorf("middle name = %q", f.MiddleName.Value)
	}
	if f.LastName.Confidence == nil || *f.LastName.Confidence != 0.8 {
		t.Errorf("surname confidence = %v, want 0.8 (ocr 0.8 x weight 1.0)", f.LastName.Confidence)
	}
	if f.Birthdate == nil || !f.Birthdate.Equal(time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("birthdate = %v", f.Birthdate)
	}
	if f.IDNumber.Value != "1234 5678 9012 3456" {
		t.Errorf("id number = %q", f.IDNumber.Value)
	}
	if f.Sex.Value != "MALE" {
		t.Errorf("sex = %q", f.Sex.Value)
	}
	if f.PlaceOfBirth.Value != "Manila" {
		t.Errorf("place of birth = %q", f.PlaceOfBirth.Value)
	}
	if f.Nationality.Value != "Filipino" {
		t.Errorf("nationality = %q", f.Nationality.Value)
	}
	if f.ClearanceType != "NONE" {
		t.Errorf("clearance type = %q on a plain ID", f.ClearanceType)
	}
}

func TestExtractFieldsCommaNameFallback(t *testing.T) {
	f := ExtractFields("REYES, MARIA CLARA 01-02-1985", "NATIONAL_ID", 0.7)
	if f.LastName.Value != "Reyes" {
		t.Errorf("last name = %q", f.LastName.Value)
	}
	if f.FirstName.Value != "Maria Clara" {
		t.Errorf("first name = %q", f.FirstName.Value)
	}
	// Fallback pattern weight is 0.6.
	if f.LastName.Confidence == nil || math.Abs(*f.LastName.Confidence-0.42) > 1e-9 {
		t.Errorf("confidence = %v, want 0.42", f.LastName.Confidence)
	}
}

func TestExtractFieldsMissing(t *testing.T) {
	f := ExtractFields("completely unrelated text with no labels", "NATIONAL_ID", 0.9)
	// Nil confidence marks a missing field; zero would mean extracted at
	// zero confidence.
	if f.LastName.Confidence != nil {
		t.Errorf("expected nil confidence for missing surname, got %v", *f.LastName.Confidence)
	}
	if f.Birthdate != nil {
		t.Errorf("expected nil birthdate, got %v", f.Birthdate)
	}
}

func TestExtractFieldsLabelCut(t *testing.T) {
	// Without lookahead the capture would run into the next label; make sure
	// it is cut.
	f := ExtractFields("SURNAME: SANTOS DATE OF BIRTH: 02/03/1991", "NATIONAL_ID", 0.9)
	if f.LastName.Value != "Santos" {
		t.Errorf("last name = %q, label cut failed", f.LastName.Value)
	}
}

func TestExtractClearanceNBI(t *testing.T) {
	var f Fields
	ExtractClearance(&f, "NBI CLEARANCE NO: A1234567-89 VALID UNTIL: January 15, 2027 ISSUED ON: January 15, 2026", 0.85)
	if f.ClearanceType != "NBI" {
		t.Errorf("clearance type = %q", f.ClearanceType)
	}
	if f.ClearanceNumber.Value != "A1234567-89" {
		t.Errorf("clearance no = %q", f.ClearanceNumber.Value)
	}
	if f.ClearanceValidityDate == nil || !f.ClearanceValidityDate.Equal(time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("validity = %v", f.ClearanceValidityDate)
	}
	if f.ClearanceIssueDate == nil || !f.ClearanceIssueDate.Equal(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("issued = %v", f.ClearanceIssueDate)
	}
}

func TestExtractClearancePoliceVsSubstring(t *testing.T) {
	var f Fields
	// "NBISU" must not count as the NBI keyword; matching is whole-word.
	ExtractClearance(&f, "BARANGAY NBISU POLICE CLEARANCE NO: PC-556677", 0.8)
	if f.ClearanceType != "POLICE" {
		t.Errorf("clearance type = %q, want POLICE", f.ClearanceType)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in       string
		want     time.Time
		wantConf float64
		ok       bool
	}{
		{"June 15, 1990", time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), 0.95, true},
		{"Sept 3 2001", time.Date(2001, 9, 3, 0, 0, 0, 0, time.UTC), 0.95, true},
		{"1990-06-15", time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), 0.95, true},
		// Day > 12 disambiguates to day-first.
		{"15/06/1990", time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), 0.9, true},
		// Second number > 12 disambiguates to month-first.
		{"06/15/1990", time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), 0.9, true},
		// Both <= 12: day-first at capped confidence.
		{"03/04/1990", time.Date(1990, 4, 3, 0, 0, 0, 0, time.UTC), 0.5, true},
		{"12/12/1899", time.Time{}, 0, false},
		{"31/02/2020", time.Time{}, 0, false},
		{"not a date", time.Time{}, 0, false},
		{"", time.Time{}, 0, false},
	}
	for _, c := range cases {
		got, conf, ok := ParseDate(c.in)
		if ok != c.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if !got.Equal(c.want) || conf != c.wantConf {
			t.Errorf("ParseDate(%q) = %v conf %v, want %v conf %v", c.in, got, conf, c.want, c.wantConf)
		}
	}
}
