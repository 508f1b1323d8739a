package database

import (
	"time"

	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/model"
)

type MeetingQuery struct {
	Query[model.Meeting]
	id     uint
	host   uint
	status []string
	due    *time.Time
	full   bool
}

func NewMeetingQuery(db *gorm.DB) *MeetingQuery {
	return &MeetingQuery{
		Query: Query[model.Meeting]{
			db:     db,
			limit:  100,
			offset: 0,
			order:  "meetings.scheduled_at",
		},
	}
}

func (q *MeetingQuery) Limit(n int) *MeetingQuery {
	if q == nil {
		return nil
	}

	q.limit = n

	return q
}

func (q *MeetingQuery) Offset(n int) *MeetingQuery {
	if q == nil {
		return nil
	}

	q.offset = n

	return q
}

func (q *MeetingQuery) Id(id uint) *MeetingQuery {
	if q == nil {
		return nil
	}

	q.id = id

	return q
}

func (q *MeetingQuery) Host(id uint) *MeetingQuery {
	if q == nil {
		return nil
	}

	q.host = id

	return q
}

func (q *MeetingQuery) Status(status ...string) *MeetingQuery {
	if q == nil {
		return nil
	}

	q.status = status

	return q
}

// Due filters open meetings whose scheduled time has passed, the ones the
// start sweep must move to in_progress.
func (q *MeetingQuery) Due(now time.Time) *MeetingQuery {
	if q == nil {
		return nil
	}

	q.due = &now
	q.status = []string{model.MeetingRecruiting, model.MeetingFull}

	return q
}

// Full preloads the meeting's participants.
func (q *MeetingQuery) Full() *MeetingQuery {
	if q == nil {
		return nil
	}

	q.full = true

	return q
}

func (q *MeetingQuery) where() *gorm.DB {
	tx := q.db

	if q.id != 0 {
		tx = tx.Where("meetings.id = ?", q.id)
	}

	if q.host != 0 {
		tx = tx.Where("meetings.host_id = ?", q.host)
	}

	if len(q.status) > 0 {
		tx = tx.Where("meetings.status in ?", q.status)
	}

	if q.due != nil {
		tx = tx.Where("meetings.scheduled_at <= ?", *q.due)
	}

	if q.full {
		tx = tx.Preload("Participants")
	}

	return tx
}

func (q *MeetingQuery) Get() []*model.Meeting {
	return q.get(q.where().Model(&model.Meeting{}))
}

func (q *MeetingQuery) One() *model.Meeting {
	return q.one(q.where().Model(&model.Meeting{}))
}

func (q *MeetingQuery) Update(updates map[string]any) error {
	return q.updateOrError(q.where().Model(&model.Meeting{}), updates)
}
