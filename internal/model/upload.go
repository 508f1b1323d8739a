package model

import "time"

const (
	UploadPending  = "pending"
	UploadApproved = "approved"
	UploadRejected = "rejected"
)

// StepUpload is the current proof attempt for one mission step of one
// participant. A re-upload after rejection replaces the row with a fresh
// pending attempt; there is at most one row per (meeting, user, step).
type StepUpload struct {
	ID          uint   `gorm:"primarykey"`
	UID         string `gorm:"index"`
	MeetingID   uint   `gorm:"index;uniqueIndex:idx_step_uploads_attempt"`
	UserID      uint   `gorm:"index;uniqueIndex:idx_step_uploads_attempt"`
	StepIndex   int    `gorm:"uniqueIndex:idx_step_uploads_attempt"`
	FileName    string
	UploadedURL string
	Status      string `gorm:"index"`
	Confidence  float64
	Reasoning   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *StepUpload) IsApproved() bool {
	return s != nil && s.Status == UploadApproved
}
