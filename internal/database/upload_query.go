package database

import (
	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/model"
)

type UploadQuery struct {
	Query[model.StepUpload]
	uid     string
	meeting uint
	user    uint
	step    *int
	status  string
}

func NewUploadQuery(db *gorm.DB) *UploadQuery {
	return &UploadQuery{
		Query: Query[model.StepUpload]{
			db:     db,
			limit:  100,
			offset: 0,
			order:  "step_uploads.step_index",
		},
	}
}

func (q *UploadQuery) UID(uid string) *UploadQuery {
	if q == nil {
		return nil
	}

	q.uid = uid

	return q
}

func (q *UploadQuery) Meeting(id uint) *UploadQuery {
	if q == nil {
		return nil
	}

	q.meeting = id

	return q
}

func (q *UploadQuery) User(id uint) *UploadQuery {
	if q == nil {
		return nil
	}

	q.user = id

	return q
}

func (q *UploadQuery) Step(n int) *UploadQuery {
	if q == nil {
		return nil
	}

	q.step = &n

	return q
}

func (q *UploadQuery) Status(status string) *UploadQuery {
	if q == nil {
		return nil
	}

	q.status = status

	return q
}

func (q *UploadQuery) where() *gorm.DB {
	tx := q.db

	if q.uid != "" {
		tx = tx.Where("step_uploads.uid = ?", q.uid)
	}

	if q.meeting != 0 {
		tx = tx.Where("step_uploads.meeting_id = ?", q.meeting)
	}

	if q.user != 0 {
		tx = tx.Where("step_uploads.user_id = ?", q.user)
	}

	if q.step != nil {
		tx = tx.Where("step_uploads.step_index = ?", *q.step)
	}

	if q.status != "" {
		tx = tx.Where("step_uploads.status = ?", q.status)
	}

	return tx
}

func (q *UploadQuery) Get() []*model.StepUpload {
	return q.get(q.where().Model(&model.StepUpload{}))
}

func (q *UploadQuery) One() *model.StepUpload {
	return q.one(q.where().Model(&model.StepUpload{}))
}

func (q *UploadQuery) Update(updates map[string]any) error {
	return q.updateOrError(q.where().Model(&model.StepUpload{}), updates)
}

func (q *UploadQuery) Delete() error {
	return q.where().Delete(&model.StepUpload{}).Error
}
