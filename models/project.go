package models

import (
	"time"
)

// ProjectStatus is the review state of a project lineage.
type ProjectStatus string

const (
	StatusPending  ProjectStatus = "pending"
	StatusApproved ProjectStatus = "approved"
	StatusRejected ProjectStatus = "rejected"
	StatusUpdated  ProjectStatus = "updated"
)

// ParseProjectStatus returns the status for s, or false if s is not one of the canonical values.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	switch st := ProjectStatus(s); st {
	case StatusPending, StatusApproved, StatusRejected, StatusUpdated:
		return st, true
	default:
		return "", false
	}
}

// IsReviewOutcome reports whether an admin may move a project into this status.
func (s ProjectStatus) IsReviewOutcome() bool {
	return s == StatusApproved || s == StatusRejected
}

// Project is the current head of a submission lineage. Older versions live in PreviousVersions.
type Project struct {
	ID             uint          `json:"id" gorm:"primaryKey"`
	Title          string        `json:"title" gorm:"size:200;not null"`
	Description    string        `json:"description" gorm:"type:text;not null"`
	OwnerID        uint          `json:"ownerId" gorm:"not null;index"`
	Owner          *User         `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Status         ProjectStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index;check:status IN ('pending','approved','rejected','updated')"`
	Version        int           `json:"version" gorm:"not null;default:1;check:version >= 1"`
	FileRef        string        `json:"projectFile" gorm:"size:255;not null"`
	AdminFeedback  string        `json:"adminFeedback" gorm:"type:text"`
	AverageRating  float64       `json:"averageRating" gorm:"not null;default:0"`
	RatingCount    int           `json:"ratingCount" gorm:"not null;default:0;check:rating_count >= 0"`
	LastReviewedAt *time.Time    `json:"lastReviewedAt"`
	LastReviewedBy *uint         `json:"lastReviewedBy"`
	CreatedAt      time.Time     `json:"createdAt" gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time     `json:"updatedAt" gorm:"autoUpdateTime"`

	PreviousVersions []ProjectVersion `json:"previousVersions" gorm:"foreignKey:ProjectID"`
}

// TableName specifies the table name for the Project model
func (Project) TableName() string {
	return "projects"
}

// IsOwnedBy checks if the user owns the project
func (p *Project) IsOwnedBy(userID uint) bool {
	return p.OwnerID == userID
}

// ApplyRating folds one rating into the running mean.
func (p *Project) ApplyRating(rating int) {
	n := float64(p.RatingCount)
	p.AverageRating = (p.AverageRating*n + float64(rating)) / (n + 1)
	p.RatingCount++
}

// Snapshot freezes the current head so it can be appended to PreviousVersions.
func (p *Project) Snapshot(at time.Time) ProjectVersion {
	return ProjectVersion{
		ProjectID:     p.ID,
		Version:       p.Version,
		Title:         p.Title,
		Description:   p.Description,
		FileRef:       p.FileRef,
		Status:        p.Status,
		AdminFeedback: p.AdminFeedback,
		SupersededAt:  at,
	}
}

// ProjectVersion is a frozen copy of a project at the moment it was superseded.
type ProjectVersion struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	ProjectID     uint          `json:"projectId" gorm:"not null;uniqueIndex:idx_project_version"`
	Version       int           `json:"version" gorm:"not null;uniqueIndex:idx_project_version"`
	Title         string        `json:"title" gorm:"size:200;not null"`
	Description   string        `json:"description" gorm:"type:text;not null"`
	FileRef       string        `json:"projectFile" gorm:"size:255;not null"`
	Status        ProjectStatus `json:"status" gorm:"type:varchar(20);not null"`
	AdminFeedback string        `json:"adminFeedback" gorm:"type:text"`
	SupersededAt  time.Time     `json:"supersededAt" gorm:"not null"`
}

// TableName specifies the table name for the ProjectVersion model
func (ProjectVersion) TableName() string {
	return "project_versions"
}
