package models

type Category struct {
	BaseModel
	Name        string `json:"name" gorm:"type:varchar(100);not null"`
	Description string `json:"description" gorm:"type:text"`

	Mappings []FileCategoryMapping `json:"-" gorm:"foreignKey:CategoryID"`
}
