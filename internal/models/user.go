package models

import "time"

// User represents a registered account.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"` // never serialized
	FirstName    string    `json:"firstName" gorm:"type:varchar(100)"`
	LastName     string    `json:"lastName" gorm:"type:varchar(100)"`
	CreatedAt    time.Time `json:"createdAt" gorm:"autoCreateTime:false"`
}
