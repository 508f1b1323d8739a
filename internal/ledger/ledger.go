// Package ledger keeps every user's point balance as an append-only list of
// entries. The balance is always derived from the last entry, never stored
// on its own.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/model"
	"github.com/moimapp/moim-server/pkg/util"
)

var ErrInsufficientPoints = errors.New("insufficient points")

type Ledger struct {
	db     *gorm.DB
	locks  *util.KeyedMutex
	logger *slog.Logger
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{
		db:     db,
		locks:  util.NewKeyedMutex(),
		logger: slog.Default().With("logger", "ledger"),
	}
}

// LockUser serializes ledger writes for one user. Callers hold the lock
// across their whole transaction, so a concurrent spender cannot pass the
// balance check on points the first transaction is still committing.
func (l *Ledger) LockUser(userID uint) {
	l.locks.Lock(userID)
}

func (l *Ledger) UnlockUser(userID uint) {
	l.locks.Unlock(userID)
}

// Balance returns the user's current point balance, the BalanceAfter of the
// most recent entry (0 when the user has no entries).
func (l *Ledger) Balance(userID uint) int {
	return l.balance(l.db, userID)
}

// BalanceTx is Balance as seen by the caller's transaction. Reads inside a
// transaction must use this, never Balance: the root connection may be held
// by that very transaction.
func (l *Ledger) BalanceTx(tx *gorm.DB, userID uint) int {
	return l.balance(tx, userID)
}

func (l *Ledger) balance(tx *gorm.DB, userID uint) int {
	var e model.PointEntry

	err := tx.Where("user_id = ?", userID).Order("id desc").Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}

	return e.BalanceAfter
}

// History returns the user's entries, newest first.
func (l *Ledger) History(userID uint, limit, offset int) []*model.PointEntry {
	var res []*model.PointEntry

	if limit <= 0 || limit > 100 {
		limit = 100
	}

	l.db.Where("user_id = ?", userID).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&res)

	return res
}

// Debit appends a negative entry. It fails with ErrInsufficientPoints when
// the balance does not cover the amount; the caller's transaction is left to
// roll back whatever else it did. Concurrent callers must hold the user's
// lock (LockUser) until their transaction commits.
func (l *Ledger) Debit(tx *gorm.DB, userID uint, amount int, typ string, meetingID uint) (*model.PointEntry, error) {
	return l.debit(tx, userID, amount, typ, meetingID, false)
}

// ForceDebit appends a negative entry without a balance check, so it may
// drive the balance negative. Used only for the host cancellation penalty,
// where the refunds to participants must be funded regardless.
func (l *Ledger) ForceDebit(tx *gorm.DB, userID uint, amount int, typ string, meetingID uint) (*model.PointEntry, error) {
	return l.debit(tx, userID, amount, typ, meetingID, true)
}

func (l *Ledger) debit(tx *gorm.DB, userID uint, amount int, typ string, meetingID uint, force bool) (*model.PointEntry, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative debit amount %d", amount)
	}

	balance := l.balance(tx, userID)

	if !force && balance < amount {
		return nil, ErrInsufficientPoints
	}

	e := &model.PointEntry{
		UserID:        userID,
		Type:          typ,
		Amount:        -amount,
		BalanceBefore: balance,
		BalanceAfter:  balance - amount,
		MeetingID:     meetingID,
	}

	if err := tx.Create(e).Error; err != nil {
		return nil, fmt.Errorf("ledger debit: %w", err)
	}

	l.logger.Debug("debit",
		slog.Any("user", userID),
		slog.String("type", typ),
		slog.Int("amount", amount),
		slog.Int("balance", e.BalanceAfter))

	return e, nil
}

// Credit appends a positive entry. Crediting never fails on balance grounds.
// Concurrent callers hold the user's lock like Debit's do.
func (l *Ledger) Credit(tx *gorm.DB, userID uint, amount int, typ string, meetingID uint) (*model.PointEntry, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative credit amount %d", amount)
	}

	balance := l.balance(tx, userID)

	e := &model.PointEntry{
		UserID:        userID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: balance,
		BalanceAfter:  balance + amount,
		MeetingID:     meetingID,
	}

	if err := tx.Create(e).Error; err != nil {
		return nil, fmt.Errorf("ledger credit: %w", err)
	}

	l.logger.Debug("credit",
		slog.Any("user", userID),
		slog.String("type", typ),
		slog.Int("amount", amount),
		slog.Int("balance", e.BalanceAfter))

	return e, nil
}
