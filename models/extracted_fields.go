package models

import "time"

// Clearance types recognized on PH clearance documents.
const (
	ClearanceTypeNBI    = "NBI"
	ClearanceTypePolice = "POLICE"
	ClearanceTypeNone   = "NONE"
)

// ExtractedFields holds the structured extraction for a submission. Every
// extracted value carries its own confidence; a nil confidence means the
// field was not extracted at all (zero is a legitimate low confidence).
// The Confirmed* columns are written when the owner reviews and confirms.
type ExtractedFields struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SubmissionID uint `gorm:"uniqueIndex;not null"`

	FirstName      string `gorm:"size:128"`
	FirstNameConf  *float64
	MiddleName     string `gorm:"size:128"`
	MiddleNameConf *float64
	LastName       string `gorm:"size:128"`
	LastNameConf   *float64
	Birthdate      *time.Time
	BirthdateConf  *float64
	Address        string `gorm:"size:512"`
	AddressConf    *float64
	IDNumber       string `gorm:"size:64"`
	IDNumberConf   *float64
	Nationality    string `gorm:"size:64"`
	NationalityConf *float64
	Sex            string `gorm:"size:16"`
	SexConf        *float64
	PlaceOfBirth   string `gorm:"size:255"`
	PlaceOfBirthConf *float64

	ClearanceNumber       string `gorm:"size:64"`
	ClearanceNumberConf   *float64
	ClearanceType         string `gorm:"size:16;default:'NONE'"` // NBI, POLICE, NONE
	ClearanceIssueDate    *time.Time
	ClearanceValidityDate *time.Time

	// Owner-confirmed counterparts, set by the confirmation endpoint.
	ConfirmedFirstName  string `gorm:"size:128"`
	ConfirmedMiddleName string `gorm:"size:128"`
	ConfirmedLastName   string `gorm:"size:128"`
	ConfirmedBirthdate  *time.Time
	ConfirmedAddress    string `gorm:"size:512"`
	ConfirmedIDNumber   string `gorm:"size:64"`
	ConfirmedAt         *time.Time
}

// Confirmed reports whether the owner has confirmed the extraction.
func (f *ExtractedFields) Confirmed() bool { return f.ConfirmedAt != nil }
