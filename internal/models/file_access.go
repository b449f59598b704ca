package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FileAccess is a per (file, user) grant. The unique index gives re-grants
// upsert semantics: at most one row per pair, replaced rather than
// duplicated. Grants are hard rows without soft-delete because reassignment
// replaces the whole set wholesale.
type FileAccess struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	FileID    uuid.UUID `json:"fileID" gorm:"type:uuid;not null;uniqueIndex:idx_file_access_file_user"`
	UserID    uuid.UUID `json:"userID" gorm:"type:uuid;not null;uniqueIndex:idx_file_access_file_user"`
	CanView   bool      `json:"canView" gorm:"not null;default:true"`
	CanEdit   bool      `json:"canEdit" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"createdAt"`

	File File `json:"-" gorm:"foreignKey:FileID;references:ID"`
	User User `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

func (a *FileAccess) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (FileAccess) TableName() string {
	return "file_accesses"
}
