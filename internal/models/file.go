package models

import (
	"time"

	"github.com/google/uuid"
)

type File struct {
	BaseModel
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	MimeType    string    `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size        int64     `json:"size" gorm:"not null;default:0"`
	StoragePath string    `json:"-" gorm:"type:text;not null"`
	UploaderID  uuid.UUID `json:"uploaderID" gorm:"type:uuid;not null;index"`

	// EditedAt/EditedByID are stamped only by edits, never by the initial
	// upload. A freshly uploaded file has both unset.
	EditedAt   *time.Time `json:"editedAt,omitempty"`
	EditedByID *uuid.UUID `json:"editedByID,omitempty" gorm:"type:uuid"`

	Uploader User  `json:"uploader,omitempty" gorm:"foreignKey:UploaderID;references:ID"`
	EditedBy *User `json:"editedBy,omitempty" gorm:"foreignKey:EditedByID;references:ID"`

	Mappings []FileCategoryMapping `json:"-" gorm:"foreignKey:FileID"`
	Grants   []FileAccess          `json:"-" gorm:"foreignKey:FileID"`
}
