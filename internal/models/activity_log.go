package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLog is an append-only record of every successful user action. It
// does NOT use BaseModel because rows are never updated or soft-deleted.
// UserID is nullable so the row survives deletion of the acting principal;
// Role snapshots the actor's role at the time of the action, not a live
// reference.
type ActivityLog struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    *uuid.UUID `json:"userID,omitempty" gorm:"type:uuid;index"`
	Role      string     `json:"role" gorm:"type:varchar(20);not null"`
	Action    string     `json:"action" gorm:"type:text;not null"`
	IPAddress string     `json:"ipAddress" gorm:"type:varchar(45)"`
	CreatedAt time.Time  `json:"createdAt" gorm:"not null;index"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID"`
}

// AnonymousRole is recorded when the acting principal is absent or
// unauthenticated.
const AnonymousRole = "Anonymous"

func (a *ActivityLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
