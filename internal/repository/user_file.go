// Package repository seeds the user table from an operator-maintained yaml
// file. The database stays the source of truth at runtime; the file exists so
// an operator can provision admins and test accounts without touching the
// API.
package repository

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/database"
	"github.com/moimapp/moim-server/internal/model"
)

type UserFileSeeder struct {
	userFile string
	db       *gorm.DB
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mx sync.Mutex
}

func NewUserFileSeeder(db *gorm.DB, userFile string) *UserFileSeeder {
	return &UserFileSeeder{
		logger:   slog.Default().With("logger", "UserSeeder"),
		userFile: userFile,
		db:       db,
	}
}

// Load reads the users file and upserts every valid record. Plaintext
// passwords in the file are hashed on the way in; values that already look
// like bcrypt hashes are stored as is.
func (r *UserFileSeeder) Load() error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, err := os.Lstat(r.userFile); os.IsNotExist(err) {
		// create empty file
		f, err := os.Create(r.userFile)
		if err != nil {
			return err
		}

		return f.Close()
	}

	dat, err := os.ReadFile(r.userFile)
	if err != nil {
		return err
	}

	users := make([]*model.User, 0)

	if err := yaml.Unmarshal(dat, &users); err != nil {
		return err
	}

	n := 0

	for _, user := range users {
		if user.Login == "" {
			continue
		}

		if err := r.seed(user); err != nil {
			r.logger.Error("seed failed", slog.String("login", user.Login), slog.Any("error", err))

			continue
		}

		n++
	}

	r.logger.Info(fmt.Sprintf("seeded %d users from %s", n, r.userFile))

	return nil
}

func (r *UserFileSeeder) seed(user *model.User) error {
	if !strings.HasPrefix(user.Password, "$2a$") && !strings.HasPrefix(user.Password, "$2b$") {
		if err := user.SetPassword(user.Password); err != nil {
			return err
		}
	}

	existing := database.NewUserQuery(r.db).Login(user.Login).One()

	if existing == nil {
		return r.db.Create(user).Error
	}

	return r.db.Model(existing).Updates(map[string]any{
		"name":     user.Name,
		"password": user.Password,
		"admin":    user.Admin,
		"disabled": user.Disabled,
	}).Error
}

// Start watches the users file and reloads it on change.
func (r *UserFileSeeder) Start() error {
	var err error
	r.watcher, err = fsnotify.NewWatcher()

	if err != nil {
		return err
	}

	if err := r.watcher.Add(r.userFile); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-r.watcher.Events:
				if !ok {
					return
				}

				r.logger.Debug(fmt.Sprintf("event: %v", event))

				if event.Has(fsnotify.Write) && event.Name == r.userFile {
					r.logger.Info("users file is modified, reloading")

					if err := r.Load(); err != nil {
						r.logger.Error("error", slog.Any("error", err))
					}
				}
			case err, ok := <-r.watcher.Errors:
				if !ok {
					return
				}

				r.logger.Error("error", slog.Any("error", err))
			}
		}
	}()

	return nil
}

func (r *UserFileSeeder) Stop() {
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
}
