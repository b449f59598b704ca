package models

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	BaseModel
	UserID     uuid.UUID  `json:"userID" gorm:"type:uuid;not null;uniqueIndex"`
	FirstName  string     `json:"firstName" gorm:"type:varchar(50)"`
	LastName   string     `json:"lastName" gorm:"type:varchar(50)"`
	DOB        *time.Time `json:"dob,omitempty"`
	Phone      string     `json:"phone" gorm:"type:varchar(50)"`
	Country    string     `json:"country" gorm:"type:varchar(50)"`
	City       string     `json:"city" gorm:"type:varchar(50)"`
	PostalCode string     `json:"postalCode" gorm:"type:varchar(50)"`
	AvatarPath *string    `json:"avatarPath,omitempty" gorm:"type:text"`
}
