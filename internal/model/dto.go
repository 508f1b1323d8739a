package model

import "time"

type UserDTO struct {
	ID    uint   `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

type MeetingDTO struct {
	ID              uint       `json:"id"`
	HostID          uint       `json:"host_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Place           string     `json:"place,omitempty"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	RecruitUntil    time.Time  `json:"recruit_until"`
	MinParticipants int        `json:"min_participants"`
	MaxParticipants int        `json:"max_participants"`
	RequiredPoints  int        `json:"required_points"`
	BasePoints      int        `json:"base_points"`
	Status          string     `json:"status"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CurrentCount    int        `json:"current_count"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`

	Participants []*ParticipantDTO `json:"participants,omitempty"`
}

type ParticipantDTO struct {
	UserID      uint       `json:"user_id"`
	Status      string     `json:"status"`
	PaidAmount  int        `json:"paid_amount"`
	JoinedAt    time.Time  `json:"joined_at"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}

type PointEntryDTO struct {
	ID            uint      `json:"id"`
	Type          string    `json:"type"`
	Amount        int       `json:"amount"`
	BalanceBefore int       `json:"balance_before"`
	BalanceAfter  int       `json:"balance_after"`
	MeetingID     uint      `json:"related_meeting_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// StepStateDTO merges a mission step definition with the participant's
// current upload attempt. Status is empty when nothing was uploaded yet.
type StepStateDTO struct {
	StepIndex   int     `json:"step_index"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status,omitempty"`
	UploadedURL string  `json:"uploaded_url,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

func (u *User) DTO() *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:    u.ID,
		Login: u.Login,
		Name:  u.Name,
		Admin: u.Admin,
	}
}

func ToMeetingDTO(m *Meeting, withParticipants bool) *MeetingDTO {
	if m == nil {
		return nil
	}

	dto := &MeetingDTO{
		ID:              m.ID,
		HostID:          m.HostID,
		Title:           m.Title,
		Description:     m.Description,
		Place:           m.Place,
		ScheduledAt:     m.ScheduledAt,
		RecruitUntil:    m.RecruitUntil,
		MinParticipants: m.MinParticipants,
		MaxParticipants: m.MaxParticipants,
		RequiredPoints:  m.RequiredPoints,
		BasePoints:      m.BasePoints,
		Status:          m.Status,
		CancelReason:    m.CancelReason,
		ArchivedAt:      m.ArchivedAt,
		CreatedAt:       m.CreatedAt,
	}

	for _, p := range m.Participants {
		if p.IsActive() || p.Status == ParticipantCompleted {
			dto.CurrentCount++
		}

		if withParticipants {
			dto.Participants = append(dto.Participants, ToParticipantDTO(p))
		}
	}

	return dto
}

func ToParticipantDTO(p *Participant) *ParticipantDTO {
	if p == nil {
		return nil
	}

	return &ParticipantDTO{
		UserID:      p.UserID,
		Status:      p.Status,
		PaidAmount:  p.PaidAmount,
		JoinedAt:    p.JoinedAt,
		CheckedInAt: p.CheckedInAt,
	}
}

func ToPointEntryDTO(e *PointEntry) *PointEntryDTO {
	if e == nil {
		return nil
	}

	return &PointEntryDTO{
		ID:            e.ID,
		Type:          e.Type,
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		MeetingID:     e.MeetingID,
		CreatedAt:     e.CreatedAt,
	}
}
