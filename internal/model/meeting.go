package model

import "time"

const (
	MeetingRecruiting = "recruiting"
	MeetingFull       = "full"
	MeetingInProgress = "in_progress"
	MeetingCompleted  = "completed"
	MeetingCancelled  = "cancelled"
)

const (
	ParticipantJoined    = "joined"
	ParticipantLeft      = "left"
	ParticipantRemoved   = "removed_by_cancel"
	ParticipantCompleted = "completed"
	ParticipantNoShow    = "no_show"
)

type Meeting struct {
	ID              uint `gorm:"primarykey"`
	HostID          uint `gorm:"index"`
	Title           string
	Description     string
	Place           string
	ScheduledAt     time.Time
	RecruitUntil    time.Time
	MinParticipants int
	MaxParticipants int
	RequiredPoints  int
	BasePoints      int
	Status          string `gorm:"index"`
	CancelReason    string
	MissionGuide    string
	ArchivedAt      *time.Time
	CreatedAt       time.Time
	Participants    []*Participant
}

type Participant struct {
	ID          uint `gorm:"primarykey"`
	MeetingID   uint `gorm:"index"`
	UserID      uint `gorm:"index"`
	Status      string
	PaidAmount  int
	JoinedAt    time.Time
	CheckedInAt *time.Time
	Rating      *int
	Review      string
}

// IsTerminal reports whether the meeting reached a final state. No joins,
// leaves or cancellations are permitted past this point.
func (m *Meeting) IsTerminal() bool {
	if m == nil {
		return true
	}

	return m.Status == MeetingCompleted || m.Status == MeetingCancelled
}

// IsOpen reports whether the meeting is still in its recruiting phase
// (recruiting or full), the only states where membership may change.
func (m *Meeting) IsOpen() bool {
	if m == nil {
		return false
	}

	return m.Status == MeetingRecruiting || m.Status == MeetingFull
}

func (m *Meeting) IsDue(now time.Time) bool {
	return m != nil && !m.ScheduledAt.After(now)
}

// IsActive reports whether the participant row still holds the membership
// slot. Terminal participant rows never block a re-join.
func (p *Participant) IsActive() bool {
	return p != nil && p.Status == ParticipantJoined
}

func (p *Participant) CheckedIn() bool {
	return p != nil && p.CheckedInAt != nil
}
