package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Template struct {
	gorm.Model
	Name        string                      `json:"name" gorm:"uniqueIndex;size:150;not null"`
	Slug        string                      `json:"slug" gorm:"uniqueIndex;size:160;not null"`
	Subject     string                      `json:"subject" gorm:"size:255"`
	HTMLContent string                      `json:"htmlContent" gorm:"type:text"`
	TextContent string                      `json:"textContent" gorm:"type:text"`
	Variables   datatypes.JSONSlice[string] `json:"variables"`
	IsActive    bool                        `json:"isActive" gorm:"not null"`
}

func (Template) TableName() string {
	return "newsletter_templates"
}
