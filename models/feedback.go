package models

import (
	"time"
)

// Feedback is an append-only review comment on a project, written by an admin or the owner.
type Feedback struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	ProjectID       uint      `json:"projectId" gorm:"not null;index"`
	AuthorID        uint      `json:"authorId" gorm:"not null;index"`
	Author          *User     `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Content         string    `json:"content" gorm:"type:text;not null"`
	Rating          *int      `json:"rating" gorm:"type:int;check:rating >= 1 AND rating <= 5"`
	IsAdminFeedback bool      `json:"isAdminFeedback" gorm:"not null;default:false"`
	CreatedAt       time.Time `json:"createdAt" gorm:"autoCreateTime;index"`
}

// TableName sets custom table name
func (Feedback) TableName() string { return "feedback" }

// HasRating reports whether this entry contributed to the project's rating aggregate.
func (f *Feedback) HasRating() bool { return f.Rating != nil }
