package models

import (
	"time"

	"github.com/google/uuid"
)

type MFAConfig struct {
	BaseModel
	UserID         uuid.UUID  `json:"userID" gorm:"type:uuid;not null;uniqueIndex"`
	TOTPSecret     string     `json:"-" gorm:"type:text"`
	TOTPEnabled    bool       `json:"totpEnabled" gorm:"not null;default:false"`
	TOTPVerifiedAt *time.Time `json:"totpVerifiedAt,omitempty"`
	RecoveryCodes  string     `json:"-" gorm:"type:text"`
	RecoveryCount  int        `json:"recoveryCount" gorm:"not null;default:0"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID"`
}
