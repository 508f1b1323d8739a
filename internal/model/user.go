package model

import (
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 14

type User struct {
	ID        uint   `gorm:"primaryKey"`
	Login     string `gorm:"uniqueIndex" yaml:"login"`
	Name      string `gorm:"not null;default:''" yaml:"name,omitempty"`
	Password  string `gorm:"not null" yaml:"password"`
	Admin     bool   `gorm:"not null;default:false" yaml:"admin,omitempty"`
	Disabled  bool   `gorm:"not null;default:false" yaml:"disabled,omitempty"`
	CreatedAt time.Time
}

func (u *User) GetID() uint {
	if u == nil {
		return 0
	}

	return u.ID
}

func (u *User) GetLogin() string {
	if u == nil {
		return ""
	}

	return u.Login
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Admin
}

func (u *User) CheckPassword(password string) bool {
	if u == nil || u.Disabled {
		return false
	}

	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	if err != nil {
		slog.Debug("password check failed", slog.Any("error", err))
		return false
	}

	return true
}

func (u *User) SetPassword(password string) error {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}

	u.Password = string(b)

	return nil
}
