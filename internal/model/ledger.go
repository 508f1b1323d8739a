package model

import "time"

const (
	EntryPayment       = "meeting_payment"
	EntryRefund        = "meeting_refund"
	EntryReward        = "meeting_reward"
	EntryNoShow        = "no_show_penalty"
	EntryCancelPenalty = "cancellation_penalty"
)

// PointEntry is one append-only row of a user's point ledger. Entries are
// never updated or deleted; corrections are new compensating entries.
// Invariant: BalanceAfter = BalanceBefore + Amount, and the user's current
// balance is the BalanceAfter of their most recent entry.
type PointEntry struct {
	ID            uint   `gorm:"primarykey"`
	UserID        uint   `gorm:"index"`
	Type          string `gorm:"index"`
	Amount        int
	BalanceBefore int
	BalanceAfter  int
	MeetingID     uint `gorm:"index"`
	CreatedAt     time.Time
}
