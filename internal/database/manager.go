package database

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/model"
)

type DatabaseManager struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB) *DatabaseManager {
	return &DatabaseManager{
		db:     db,
		logger: slog.With("logger", "dbm"),
	}
}

func (mm *DatabaseManager) DB() *gorm.DB {
	if mm == nil {
		return nil
	}

	return mm.db
}

func (mm *DatabaseManager) Create(s any) error {
	if mm == nil || mm.db == nil {
		return nil
	}

	err := mm.db.Create(s).Error

	if err != nil {
		mm.logger.Error("error create object", slog.Any("error", err))
	}

	return err
}

func (mm *DatabaseManager) Save(s any) error {
	if mm == nil || mm.db == nil {
		return nil
	}

	err := mm.db.Save(s).Error

	if err != nil {
		mm.logger.Error("error saving object", slog.Any("error", err))
	}

	return err
}

func (mm *DatabaseManager) MeetingQuery() *MeetingQuery {
	return NewMeetingQuery(mm.db)
}

func (mm *DatabaseManager) ParticipantQuery() *ParticipantQuery {
	return NewParticipantQuery(mm.db)
}

func (mm *DatabaseManager) UploadQuery() *UploadQuery {
	return NewUploadQuery(mm.db)
}

func (mm *DatabaseManager) UserQuery() *UserQuery {
	return NewUserQuery(mm.db)
}

func (mm *DatabaseManager) Migrate() error {
	if mm == nil || mm.db == nil {
		return fmt.Errorf("no database")
	}

	if err := mm.db.AutoMigrate(
		&model.User{},
		&model.Meeting{},
		&model.Participant{},
		&model.PointEntry{},
		&model.StepUpload{},
	); err != nil {
		return err
	}

	return nil
}
