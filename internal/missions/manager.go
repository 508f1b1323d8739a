// Package missions tracks the per-participant photo proof steps of a meeting
// mission and settles the reward once every step is approved. It is the piece
// that ties the meeting lifecycle and the point ledger together at the end of
// a successful meeting.
package missions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/database"
	"github.com/moimapp/moim-server/internal/guide"
	"github.com/moimapp/moim-server/internal/ledger"
	"github.com/moimapp/moim-server/internal/meetings"
	"github.com/moimapp/moim-server/internal/model"
	"github.com/moimapp/moim-server/internal/verify"
	"github.com/moimapp/moim-server/internal/wshandler"
	"github.com/moimapp/moim-server/pkg/util"
)

var (
	ErrNoSuchStep      = errors.New("no such mission step")
	ErrStepsIncomplete = errors.New("mission steps incomplete")
)

// Verifier is the outward-facing seam to the external verification service.
type Verifier interface {
	Check(ctx context.Context, uid, fileName string, photo []byte) (*verify.Result, error)
	Status(ctx context.Context, uid string) (*verify.Result, error)
}

// Notifier receives verification status changes for out-of-band delivery.
type Notifier interface {
	Notify(userID uint, ev *wshandler.VerifyEvent)
}

type Manager struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	locks    *util.KeyedMutex
	verifier Verifier
	notifier Notifier
	logger   *slog.Logger
}

// New builds the mission manager. The locks must be the same keyed mutex the
// meeting manager uses, so settlement and lifecycle changes of one meeting
// never interleave. notifier may be nil.
func New(db *gorm.DB, l *ledger.Ledger, locks *util.KeyedMutex, v Verifier, n Notifier) *Manager {
	return &Manager{
		db:       db,
		ledger:   l,
		locks:    locks,
		verifier: v,
		notifier: n,
		logger:   slog.Default().With("logger", "missions"),
	}
}

// Steps returns the parsed proof steps of the meeting's mission guide.
func (mm *Manager) Steps(meetingID uint) ([]guide.Step, error) {
	m := database.NewMeetingQuery(mm.db).Id(meetingID).One()
	if m == nil {
		return nil, meetings.ErrNotFound
	}

	return guide.Parse(m.MissionGuide), nil
}

// SubmitStepPhoto stores a fresh proof attempt for one step and asks the
// verification service about it. A previous attempt for the same step,
// rejected or not, is replaced. A slow service leaves the attempt pending;
// an unreachable one keeps the pending attempt but reports the failure.
func (mm *Manager) SubmitStepPhoto(ctx context.Context, meetingID, userID uint, stepIndex int, fileName string, photo []byte) (*model.StepUpload, error) {
	m := database.NewMeetingQuery(mm.db).Id(meetingID).One()
	if m == nil {
		return nil, meetings.ErrNotFound
	}

	steps := guide.Parse(m.MissionGuide)
	if stepIndex < 0 || stepIndex >= len(steps) {
		return nil, ErrNoSuchStep
	}

	if database.NewParticipantQuery(mm.db).Meeting(meetingID).User(userID).Active().One() == nil {
		return nil, meetings.ErrNotParticipant
	}

	uid := uuid.NewString()

	up := database.NewUploadQuery(mm.db).Meeting(meetingID).User(userID).Step(stepIndex).One()
	if up == nil {
		up = &model.StepUpload{
			MeetingID: meetingID,
			UserID:    userID,
			StepIndex: stepIndex,
		}
	}

	up.UID = uid
	up.FileName = fileName
	up.UploadedURL = "/uploads/" + uid + "/" + fileName
	up.Status = model.UploadPending
	up.Confidence = 0
	up.Reasoning = ""

	if err := mm.db.Save(up).Error; err != nil {
		return nil, err
	}

	res, err := mm.verifier.Check(ctx, uid, fileName, photo)
	if err != nil {
		// the attempt stays pending so the poller or a retry can pick
		// it up
		return up, err
	}

	if err := mm.record(up, res); err != nil {
		return nil, err
	}

	return up, nil
}

func (mm *Manager) record(up *model.StepUpload, res *verify.Result) error {
	up.Status = res.Status
	up.Confidence = res.Confidence
	up.Reasoning = res.Reasoning

	if err := mm.db.Save(up).Error; err != nil {
		return err
	}

	verificationsMetric.WithLabelValues(res.Status).Inc()

	if mm.notifier != nil {
		mm.notifier.Notify(up.UserID, &wshandler.VerifyEvent{
			Typ:       "verification",
			MeetingID: up.MeetingID,
			StepIndex: up.StepIndex,
			Status:    up.Status,
			Reasoning: up.Reasoning,
		})
	}

	return nil
}

// StepStates merges the step definitions with the participant's current
// attempts. Steps without an upload have an empty status.
func (mm *Manager) StepStates(meetingID, userID uint) ([]*model.StepStateDTO, error) {
	m := database.NewMeetingQuery(mm.db).Id(meetingID).One()
	if m == nil {
		return nil, meetings.ErrNotFound
	}

	steps := guide.Parse(m.MissionGuide)
	uploads := database.NewUploadQuery(mm.db).Meeting(meetingID).User(userID).Get()

	byStep := make(map[int]*model.StepUpload, len(uploads))
	for _, u := range uploads {
		byStep[u.StepIndex] = u
	}

	res := make([]*model.StepStateDTO, len(steps))

	for i, s := range steps {
		dto := &model.StepStateDTO{
			StepIndex:   s.Index,
			Title:       s.Title,
			Description: s.Description,
		}

		if u, ok := byStep[s.Index]; ok {
			dto.Status = u.Status
			dto.UploadedURL = u.UploadedURL
			dto.Confidence = u.Confidence
			dto.Reasoning = u.Reasoning
		}

		res[i] = dto
	}

	return res, nil
}

// IsReadyForFinal reports whether every step of the mission has an approved
// attempt.
func (mm *Manager) IsReadyForFinal(meetingID, userID uint) (bool, error) {
	return mm.isReady(mm.db, meetingID, userID)
}

func (mm *Manager) isReady(tx *gorm.DB, meetingID, userID uint) (bool, error) {
	m := database.NewMeetingQuery(tx).Id(meetingID).One()
	if m == nil {
		return false, meetings.ErrNotFound
	}

	steps := guide.Parse(m.MissionGuide)
	uploads := database.NewUploadQuery(tx).Meeting(meetingID).User(userID).Get()

	approved := make(map[int]bool, len(uploads))

	for _, u := range uploads {
		if u.IsApproved() {
			approved[u.StepIndex] = true
		}
	}

	for _, s := range steps {
		if !approved[s.Index] {
			return false, nil
		}
	}

	return true, nil
}

// Finalize converts the participant's escrow into the reward payout: it
// requires every step approved, credits the base points, marks the
// participant completed and clears the upload state. Nothing is written when
// the gate fails. The meeting itself completes once its last remaining
// participant finalized.
func (mm *Manager) Finalize(meetingID, userID uint, rating *int, review string) error {
	mm.locks.Lock(meetingID)
	defer mm.locks.Unlock(meetingID)

	mm.ledger.LockUser(userID)
	defer mm.ledger.UnlockUser(userID)

	err := mm.db.Transaction(func(tx *gorm.DB) error {
		m := database.NewMeetingQuery(tx).Id(meetingID).One()
		if m == nil {
			return meetings.ErrNotFound
		}

		p := database.NewParticipantQuery(tx).Meeting(meetingID).User(userID).Active().One()
		if p == nil {
			return meetings.ErrNotParticipant
		}

		ready, err := mm.isReady(tx, meetingID, userID)
		if err != nil {
			return err
		}

		if !ready {
			return ErrStepsIncomplete
		}

		if m.BasePoints > 0 {
			if _, err := mm.ledger.Credit(tx, userID, m.BasePoints, model.EntryReward, m.ID); err != nil {
				return err
			}
		}

		updates := map[string]any{
			"status": model.ParticipantCompleted,
			"review": review,
		}
		if rating != nil {
			updates["rating"] = *rating
		}

		if err := tx.Model(&model.Participant{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
			return err
		}

		// idempotent reset of the proof state, not a retryable
		// re-submission
		if err := database.NewUploadQuery(tx).Meeting(meetingID).User(userID).Delete(); err != nil {
			return err
		}

		remaining := database.NewParticipantQuery(tx).Meeting(meetingID).Active().Count()
		if remaining == 0 && m.Status == model.MeetingInProgress {
			if err := tx.Model(&model.Meeting{}).Where("id = ?", m.ID).Updates(map[string]any{
				"status":      model.MeetingCompleted,
				"archived_at": time.Now(),
			}).Error; err != nil {
				return err
			}
		}

		return nil
	})

	if err == nil {
		mm.logger.Info("mission finalized", slog.Any("meeting", meetingID), slog.Any("user", userID))
		rewardsMetric.Inc()
	}

	return err
}

// PollPending re-checks pending attempts against the verification service and
// records any terminal outcome. Run periodically by the server.
func (mm *Manager) PollPending(ctx context.Context) int {
	updated := 0

	for _, up := range database.NewUploadQuery(mm.db).Status(model.UploadPending).Get() {
		res, err := mm.verifier.Status(ctx, up.UID)
		if err != nil {
			mm.logger.Warn("poll failed", slog.String("uid", up.UID), slog.Any("error", err))

			continue
		}

		if res.Status == verify.StatusPending {
			continue
		}

		if err := mm.record(up, res); err != nil {
			mm.logger.Error("poll record", slog.String("uid", up.UID), slog.Any("error", err))

			continue
		}

		updated++
	}

	return updated
}
