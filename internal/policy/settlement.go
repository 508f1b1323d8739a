// Package policy holds the pure settlement rules: how much of an escrowed
// deposit comes back when a participant leaves, and what a host pays for a
// late cancellation. No storage, no clocks - callers pass the time in.
package policy

import "time"

const (
	CategoryEarly  = "12시간 전"
	CategoryHalf   = "1~12시간 전"
	CategoryLate   = "1시간 전 이후"
	CategoryBefore = "1시간 전"

	ColorSuccess = "success"
	ColorWarning = "warning"
	ColorError   = "error"
)

type LeaveRefund struct {
	Refund       int
	Penalty      int
	TimeCategory string
}

type CancelPenalty struct {
	HasHostPenalty       bool
	PenaltyAmount        int
	RefundToParticipants int
	TimeCategory         string
	Color                string
}

// ComputeLeaveRefund applies the tiered leave policy to a deposit of paid
// points. More than 12 hours before the recruiting deadline the deposit comes
// back in full, between 1 and 12 hours half of it does, and within the last
// hour nothing does. A gap of exactly 12 or exactly 1 hour falls into the
// lower-refund band.
func ComputeLeaveRefund(now, recruitUntil time.Time, paid int) LeaveRefund {
	left := recruitUntil.Sub(now)

	switch {
	case left > 12*time.Hour:
		return LeaveRefund{Refund: paid, Penalty: 0, TimeCategory: CategoryEarly}
	case left > time.Hour:
		refund := paid / 2

		return LeaveRefund{Refund: refund, Penalty: paid - refund, TimeCategory: CategoryHalf}
	default:
		return LeaveRefund{Refund: 0, Penalty: paid, TimeCategory: CategoryLate}
	}
}

// ComputeCancelPenalty applies the host cancellation policy. Participants are
// always refunded their full deposits; within the last hour before the
// deadline the host is additionally charged the whole refunded total.
// TimeCategory and Color are display labels, the numeric fields are the
// contract.
func ComputeCancelPenalty(now, recruitUntil time.Time, totalPaid int) CancelPenalty {
	left := recruitUntil.Sub(now)

	if left > time.Hour {
		return CancelPenalty{
			HasHostPenalty:       false,
			PenaltyAmount:        0,
			RefundToParticipants: totalPaid,
			TimeCategory:         CategoryBefore,
			Color:                ColorSuccess,
		}
	}

	return CancelPenalty{
		HasHostPenalty:       true,
		PenaltyAmount:        totalPaid,
		RefundToParticipants: totalPaid,
		TimeCategory:         CategoryLate,
		Color:                ColorError,
	}
}
