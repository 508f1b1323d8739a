package database

import (
	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/model"
)

type ParticipantQuery struct {
	Query[model.Participant]
	meeting uint
	user    uint
	status  []string
}

func NewParticipantQuery(db *gorm.DB) *ParticipantQuery {
	return &ParticipantQuery{
		Query: Query[model.Participant]{
			db:     db,
			limit:  100,
			offset: 0,
			order:  "participants.joined_at",
		},
	}
}

func (q *ParticipantQuery) Meeting(id uint) *ParticipantQuery {
	if q == nil {
		return nil
	}

	q.meeting = id

	return q
}

func (q *ParticipantQuery) User(id uint) *ParticipantQuery {
	if q == nil {
		return nil
	}

	q.user = id

	return q
}

func (q *ParticipantQuery) Status(status ...string) *ParticipantQuery {
	if q == nil {
		return nil
	}

	q.status = status

	return q
}

// Active keeps only rows that still hold a membership slot.
func (q *ParticipantQuery) Active() *ParticipantQuery {
	return q.Status(model.ParticipantJoined)
}

func (q *ParticipantQuery) where() *gorm.DB {
	tx := q.db

	if q.meeting != 0 {
		tx = tx.Where("participants.meeting_id = ?", q.meeting)
	}

	if q.user != 0 {
		tx = tx.Where("participants.user_id = ?", q.user)
	}

	if len(q.status) > 0 {
		tx = tx.Where("participants.status in ?", q.status)
	}

	return tx
}

func (q *ParticipantQuery) Get() []*model.Participant {
	return q.get(q.where().Model(&model.Participant{}))
}

func (q *ParticipantQuery) One() *model.Participant {
	return q.one(q.where().Model(&model.Participant{}))
}

func (q *ParticipantQuery) Count() int64 {
	return q.count(q.where().Model(&model.Participant{}))
}

func (q *ParticipantQuery) Update(updates map[string]any) error {
	return q.updateOrError(q.where().Model(&model.Participant{}), updates)
}
