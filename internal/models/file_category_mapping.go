package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FileCategoryMapping ties one file to one category. AssignedByID/AssignedAt
// are fixed at creation and never change; only the reassignment pair is
// updated when the category or grantee set changes later.
type FileCategoryMapping struct {
	BaseModel
	FileID     uuid.UUID `json:"fileID" gorm:"type:uuid;not null;index"`
	CategoryID uuid.UUID `json:"categoryID" gorm:"type:uuid;not null;index"`

	AssignedByID *uuid.UUID `json:"assignedByID,omitempty" gorm:"type:uuid"`
	AssignedAt   time.Time  `json:"assignedAt" gorm:"not null"`

	ReassignedByID *uuid.UUID `json:"reassignedByID,omitempty" gorm:"type:uuid"`
	ReassignedAt   *time.Time `json:"reassignedAt,omitempty"`

	File         File     `json:"file,omitempty" gorm:"foreignKey:FileID;references:ID"`
	Category     Category `json:"category,omitempty" gorm:"foreignKey:CategoryID;references:ID"`
	AssignedBy   *User    `json:"assignedBy,omitempty" gorm:"foreignKey:AssignedByID;references:ID"`
	ReassignedBy *User    `json:"reassignedBy,omitempty" gorm:"foreignKey:ReassignedByID;references:ID"`
}

func (m *FileCategoryMapping) BeforeCreate(tx *gorm.DB) error {
	if err := m.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if m.AssignedAt.IsZero() {
		m.AssignedAt = time.Now().UTC()
	}
	return nil
}
