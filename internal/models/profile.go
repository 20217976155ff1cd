package models

import "time"

// Profile is a signed-in person: student, teacher or staff.
type Profile struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:255;not null"`
	Email     string    `gorm:"size:255;uniqueIndex;not null"`
	Phone     string    `gorm:"size:32"`
	Address   string    `gorm:"type:text"`
	AccountID string    `gorm:"size:64;index"`
	RoleID    string    `gorm:"size:64"`
	RoleName  string    `gorm:"size:32;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
