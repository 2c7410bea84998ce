package models

import "time"

// Agency is the second kind of KYC owner. An agency verifies with its
// business paperwork plus the documents of an authorized representative.
type Agency struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
	Name      string     `gorm:"size:255;not null"`
	Email     string     `gorm:"size:255"`
	Phone     string     `gorm:"size:64"`
	Address   string     `gorm:"size:512"`
	// OwnerUserID is the account that administers the agency.
	OwnerUserID uint `gorm:"index;not null"`
	Owner       User `gorm:"foreignKey:OwnerUserID;references:ID"`
	// Verified mirrors the latest agency KYC decision, same contract as
	// User.Verified.
	Verified bool   `gorm:"default:false;not null;index"`
	RepName  string `gorm:"size:255"` // authorized representative
}
