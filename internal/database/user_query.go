package database

import (
	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/model"
)

type UserQuery struct {
	Query[model.User]
	id    uint
	login string
}

func NewUserQuery(db *gorm.DB) *UserQuery {
	return &UserQuery{
		Query: Query[model.User]{
			db:     db,
			limit:  100,
			offset: 0,
			order:  "users.login",
		},
	}
}

func (q *UserQuery) Id(id uint) *UserQuery {
	if q == nil {
		return nil
	}

	q.id = id

	return q
}

func (q *UserQuery) Login(login string) *UserQuery {
	if q == nil {
		return nil
	}

	q.login = login

	return q
}

func (q *UserQuery) where() *gorm.DB {
	tx := q.db

	if q.id != 0 {
		tx = tx.Where("users.id = ?", q.id)
	}

	if q.login != "" {
		tx = tx.Where("users.login = ?", q.login)
	}

	return tx
}

func (q *UserQuery) Get() []*model.User {
	return q.get(q.where().Model(&model.User{}))
}

func (q *UserQuery) One() *model.User {
	return q.one(q.where().Model(&model.User{}))
}

func (q *UserQuery) Count() int64 {
	return q.count(q.where().Model(&model.User{}))
}
