// Package meetings implements the meeting lifecycle: recruiting, joining and
// leaving with escrowed deposits, host cancellation with refund fan-out, and
// the transition to in_progress once the scheduled time passes.
//
// Every mutating operation takes the per-meeting lock and runs inside one
// database transaction, so concurrent joins cannot overshoot the capacity and
// a cancellation's refunds commit as a unit or not at all.
package meetings

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/database"
	"github.com/moimapp/moim-server/internal/ledger"
	"github.com/moimapp/moim-server/internal/model"
	"github.com/moimapp/moim-server/internal/policy"
	"github.com/moimapp/moim-server/pkg/util"
)

type Manager struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	locks  *util.KeyedMutex
	logger *slog.Logger
}

func New(db *gorm.DB, l *ledger.Ledger, locks *util.KeyedMutex) *Manager {
	return &Manager{
		db:     db,
		ledger: l,
		locks:  locks,
		logger: slog.Default().With("logger", "meetings"),
	}
}

func (mm *Manager) Create(m *model.Meeting) error {
	if m == nil || m.HostID == 0 || m.Title == "" {
		return ErrInvalidMeeting
	}

	if m.MaxParticipants < 1 || m.MinParticipants > m.MaxParticipants {
		return ErrInvalidMeeting
	}

	if m.RequiredPoints < 0 || m.BasePoints < 0 {
		return ErrInvalidMeeting
	}

	if m.RecruitUntil.After(m.ScheduledAt) {
		return ErrInvalidMeeting
	}

	m.Status = model.MeetingRecruiting

	if err := mm.db.Create(m).Error; err != nil {
		return err
	}

	mm.logger.Info("meeting created",
		slog.Any("meeting", m.ID),
		slog.Any("host", m.HostID),
		slog.String("title", m.Title))

	return nil
}

// Get returns the meeting, moving it to in_progress first if its scheduled
// time has passed unnoticed by the sweep.
func (mm *Manager) Get(id uint, now time.Time) (*model.Meeting, error) {
	m := database.NewMeetingQuery(mm.db).Id(id).Full().One()
	if m == nil {
		return nil, ErrNotFound
	}

	if m.IsOpen() && m.IsDue(now) {
		mm.locks.Lock(id)
		defer mm.locks.Unlock(id)

		if err := mm.db.Model(&model.Meeting{}).Where("id = ?", id).
			Update("status", model.MeetingInProgress).Error; err != nil {
			return nil, err
		}

		m.Status = model.MeetingInProgress
	}

	return m, nil
}

func (mm *Manager) List(status []string, limit, offset int) []*model.Meeting {
	q := database.NewMeetingQuery(mm.db).Full().Limit(limit).Offset(offset)

	if len(status) > 0 {
		q = q.Status(status...)
	}

	return q.Get()
}

// refresh loads the meeting inside the caller's transaction and applies the
// lazy start transition. Callers must hold the meeting lock.
func (mm *Manager) refresh(tx *gorm.DB, id uint, now time.Time) (*model.Meeting, error) {
	m := database.NewMeetingQuery(tx).Id(id).One()
	if m == nil {
		return nil, ErrNotFound
	}

	if m.IsOpen() && m.IsDue(now) {
		if err := tx.Model(&model.Meeting{}).Where("id = ?", id).
			Update("status", model.MeetingInProgress).Error; err != nil {
			return nil, err
		}

		m.Status = model.MeetingInProgress
	}

	return m, nil
}

// Join escrows the meeting's deposit and adds the user as a participant.
func (mm *Manager) Join(meetingID, userID uint, now time.Time) error {
	mm.locks.Lock(meetingID)
	defer mm.locks.Unlock(meetingID)

	// held through the commit, so another meeting's join cannot spend the
	// same points
	mm.ledger.LockUser(userID)
	defer mm.ledger.UnlockUser(userID)

	err := mm.db.Transaction(func(tx *gorm.DB) error {
		m, err := mm.refresh(tx, meetingID, now)
		if err != nil {
			return err
		}

		switch m.Status {
		case model.MeetingRecruiting:
		case model.MeetingFull:
			return ErrMeetingFull
		default:
			return ErrNotJoinable
		}

		if database.NewParticipantQuery(tx).Meeting(meetingID).User(userID).Active().One() != nil {
			return ErrAlreadyJoined
		}

		count := int(database.NewParticipantQuery(tx).Meeting(meetingID).Active().Count())
		if count >= m.MaxParticipants {
			return ErrMeetingFull
		}

		if _, err := mm.ledger.Debit(tx, userID, m.RequiredPoints, model.EntryPayment, m.ID); err != nil {
			return err
		}

		p := &model.Participant{
			MeetingID:  m.ID,
			UserID:     userID,
			Status:     model.ParticipantJoined,
			PaidAmount: m.RequiredPoints,
			JoinedAt:   now,
		}

		if err := tx.Create(p).Error; err != nil {
			return err
		}

		if count+1 >= m.MaxParticipants {
			if err := tx.Model(&model.Meeting{}).Where("id = ?", m.ID).
				Update("status", model.MeetingFull).Error; err != nil {
				return err
			}
		}

		return nil
	})

	if err == nil {
		mm.logger.Info("join", slog.Any("meeting", meetingID), slog.Any("user", userID))
		joinsMetric.Inc()
	}

	return err
}

// Leave releases the user's slot and refunds the deposit according to the
// tiered leave policy. The penalty part is simply the escrow that is not
// returned; no additional debit is written.
func (mm *Manager) Leave(meetingID, userID uint, now time.Time) (*policy.LeaveRefund, error) {
	mm.locks.Lock(meetingID)
	defer mm.locks.Unlock(meetingID)

	mm.ledger.LockUser(userID)
	defer mm.ledger.UnlockUser(userID)

	var res policy.LeaveRefund

	err := mm.db.Transaction(func(tx *gorm.DB) error {
		m, err := mm.refresh(tx, meetingID, now)
		if err != nil {
			return err
		}

		if !m.IsOpen() {
			return ErrNotJoinable
		}

		p := database.NewParticipantQuery(tx).Meeting(meetingID).User(userID).Active().One()
		if p == nil {
			return ErrNotParticipant
		}

		res = policy.ComputeLeaveRefund(now, m.RecruitUntil, p.PaidAmount)

		if res.Refund > 0 {
			if _, err := mm.ledger.Credit(tx, userID, res.Refund, model.EntryRefund, m.ID); err != nil {
				return err
			}
		}

		if err := tx.Model(&model.Participant{}).Where("id = ?", p.ID).
			Update("status", model.ParticipantLeft).Error; err != nil {
			return err
		}

		if m.Status == model.MeetingFull {
			if err := tx.Model(&model.Meeting{}).Where("id = ?", m.ID).
				Update("status", model.MeetingRecruiting).Error; err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	mm.logger.Info("leave",
		slog.Any("meeting", meetingID),
		slog.Any("user", userID),
		slog.Int("refund", res.Refund),
		slog.Int("penalty", res.Penalty),
		slog.String("tier", res.TimeCategory))
	leavesMetric.Inc()
	settlementMetric.WithLabelValues(model.EntryRefund).Add(float64(res.Refund))

	return &res, nil
}

// Cancel is the host tearing the meeting down: every joined participant gets
// the full deposit back, and within the last hour before the deadline the
// host is charged the refunded total. All ledger entries and status changes
// commit in one transaction.
func (mm *Manager) Cancel(meetingID, hostID uint, reason string, now time.Time) (*policy.CancelPenalty, error) {
	mm.locks.Lock(meetingID)
	defer mm.locks.Unlock(meetingID)

	// Membership is stable under the meeting lock, so the set of ledgers the
	// fan-out touches can be collected before the transaction starts. Sorted
	// and deduped: the host may have joined their own meeting.
	users := []uint{hostID}
	for _, p := range database.NewParticipantQuery(mm.db).Meeting(meetingID).Active().Get() {
		users = append(users, p.UserID)
	}
	slices.Sort(users)
	users = slices.Compact(users)
	for _, u := range users {
		mm.ledger.LockUser(u)
		defer mm.ledger.UnlockUser(u)
	}

	var res policy.CancelPenalty

	err := mm.db.Transaction(func(tx *gorm.DB) error {
		m, err := mm.refresh(tx, meetingID, now)
		if err != nil {
			return err
		}

		if m.HostID != hostID {
			return ErrNotHost
		}

		if !m.IsOpen() {
			return ErrNotCancellable
		}

		if strings.TrimSpace(reason) == "" {
			return ErrEmptyReason
		}

		active := database.NewParticipantQuery(tx).Meeting(meetingID).Active().Get()

		total := 0
		for _, p := range active {
			total += p.PaidAmount
		}

		res = policy.ComputeCancelPenalty(now, m.RecruitUntil, total)

		for _, p := range active {
			if _, err := mm.ledger.Credit(tx, p.UserID, p.PaidAmount, model.EntryRefund, m.ID); err != nil {
				return err
			}

			if err := tx.Model(&model.Participant{}).Where("id = ?", p.ID).
				Update("status", model.ParticipantRemoved).Error; err != nil {
				return err
			}
		}

		if res.HasHostPenalty && res.PenaltyAmount > 0 {
			if _, err := mm.ledger.ForceDebit(tx, hostID, res.PenaltyAmount, model.EntryCancelPenalty, m.ID); err != nil {
				return err
			}
		}

		return tx.Model(&model.Meeting{}).Where("id = ?", m.ID).Updates(map[string]any{
			"status":        model.MeetingCancelled,
			"cancel_reason": reason,
			"archived_at":   now,
		}).Error
	})

	if err != nil {
		return nil, err
	}

	mm.logger.Info("cancel",
		slog.Any("meeting", meetingID),
		slog.Any("host", hostID),
		slog.Int("refunded", res.RefundToParticipants),
		slog.Bool("host_penalty", res.HasHostPenalty))
	cancelsMetric.Inc()
	settlementMetric.WithLabelValues(model.EntryRefund).Add(float64(res.RefundToParticipants))

	if res.HasHostPenalty {
		settlementMetric.WithLabelValues(model.EntryCancelPenalty).Add(float64(res.PenaltyAmount))
	}

	return &res, nil
}

// CheckIn marks the participant as present once the meeting has started.
func (mm *Manager) CheckIn(meetingID, userID uint, now time.Time) error {
	mm.locks.Lock(meetingID)
	defer mm.locks.Unlock(meetingID)

	return mm.db.Transaction(func(tx *gorm.DB) error {
		m, err := mm.refresh(tx, meetingID, now)
		if err != nil {
			return err
		}

		if m.Status != model.MeetingInProgress {
			return ErrNotStarted
		}

		p := database.NewParticipantQuery(tx).Meeting(meetingID).User(userID).Active().One()
		if p == nil {
			return ErrNotParticipant
		}

		return tx.Model(&model.Participant{}).Where("id = ?", p.ID).
			Update("checked_in_at", now).Error
	})
}

// MarkNoShow is host-triggered after the meeting time for participants who
// never checked in. The penalty is all-or-nothing: the paid deposit, capped
// at the user's current balance so an ordinary debit never goes negative.
func (mm *Manager) MarkNoShow(meetingID, hostID, userID uint, now time.Time) error {
	mm.locks.Lock(meetingID)
	defer mm.locks.Unlock(meetingID)

	mm.ledger.LockUser(userID)
	defer mm.ledger.UnlockUser(userID)

	err := mm.db.Transaction(func(tx *gorm.DB) error {
		m, err := mm.refresh(tx, meetingID, now)
		if err != nil {
			return err
		}

		if m.HostID != hostID {
			return ErrNotHost
		}

		if m.IsOpen() || m.Status == model.MeetingCancelled {
			return ErrNotStarted
		}

		p := database.NewParticipantQuery(tx).Meeting(meetingID).User(userID).Active().One()
		if p == nil {
			return ErrNotParticipant
		}

		if p.CheckedIn() {
			return ErrCheckedIn
		}

		penalty := p.PaidAmount
		if b := mm.ledger.BalanceTx(tx, userID); b < penalty {
			penalty = b
		}

		if penalty > 0 {
			if _, err := mm.ledger.Debit(tx, userID, penalty, model.EntryNoShow, m.ID); err != nil {
				return err
			}

			settlementMetric.WithLabelValues(model.EntryNoShow).Add(float64(penalty))
		}

		return tx.Model(&model.Participant{}).Where("id = ?", p.ID).
			Update("status", model.ParticipantNoShow).Error
	})

	if err == nil {
		mm.logger.Info("no-show", slog.Any("meeting", meetingID), slog.Any("user", userID))
		noShowsMetric.Inc()
	}

	return err
}

// StartDue moves every open meeting whose scheduled time has passed to
// in_progress. Run periodically by the server.
func (mm *Manager) StartDue(now time.Time) int {
	started := 0

	for _, m := range database.NewMeetingQuery(mm.db).Due(now).Get() {
		mm.locks.Lock(m.ID)

		err := mm.db.Model(&model.Meeting{}).
			Where("id = ? and status in ?", m.ID, []string{model.MeetingRecruiting, model.MeetingFull}).
			Update("status", model.MeetingInProgress).Error

		mm.locks.Unlock(m.ID)

		if err != nil {
			mm.logger.Error("start sweep", slog.Any("meeting", m.ID), slog.Any("error", err))

			continue
		}

		mm.logger.Info("meeting started", slog.Any("meeting", m.ID))

		started++
	}

	return started
}
