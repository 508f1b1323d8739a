package missions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/database"
	"github.com/moimapp/moim-server/internal/ledger"
	"github.com/moimapp/moim-server/internal/meetings"
	"github.com/moimapp/moim-server/internal/model"
	"github.com/moimapp/moim-server/internal/verify"
	"github.com/moimapp/moim-server/internal/wshandler"
	"github.com/moimapp/moim-server/pkg/util"
)

type fakeVerifier struct {
	checkResult  *verify.Result
	checkErr     error
	statusResult map[string]*verify.Result
	checked      []string
}

func (f *fakeVerifier) Check(_ context.Context, uid, _ string, _ []byte) (*verify.Result, error) {
	f.checked = append(f.checked, uid)

	if f.checkErr != nil {
		return nil, f.checkErr
	}

	return f.checkResult, nil
}

func (f *fakeVerifier) Status(_ context.Context, uid string) (*verify.Result, error) {
	if r, ok := f.statusResult[uid]; ok {
		return r, nil
	}

	return nil, verify.ErrUnavailable
}

type fakeNotifier struct {
	events []*wshandler.VerifyEvent
}

func (f *fakeNotifier) Notify(_ uint, ev *wshandler.VerifyEvent) {
	f.events = append(f.events, ev)
}

type testEnv struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	meetings *meetings.Manager
	mgr      *Manager
	verifier *fakeVerifier
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.New(db).Migrate())

	l := ledger.New(db)
	locks := util.NewKeyedMutex()

	v := &fakeVerifier{
		checkResult:  &verify.Result{Status: verify.StatusApproved, Confidence: 0.95},
		statusResult: make(map[string]*verify.Result),
	}
	n := &fakeNotifier{}

	return &testEnv{
		db:       db,
		ledger:   l,
		meetings: meetings.New(db, l, locks),
		mgr:      New(db, l, locks, v, n),
		verifier: v,
		notifier: n,
	}
}

// started creates a meeting with the given guide, joins user 2 and moves the
// meeting past its start.
func (e *testEnv) started(t *testing.T, guide string) *model.Meeting {
	t.Helper()

	now := time.Now()

	m := &model.Meeting{
		HostID:          1,
		Title:           "북한산 등산",
		ScheduledAt:     now.Add(time.Minute),
		RecruitUntil:    now,
		MinParticipants: 1,
		MaxParticipants: 3,
		RequiredPoints:  100,
		BasePoints:      300,
		MissionGuide:    guide,
	}

	require.NoError(t, e.meetings.Create(m))

	_, err := e.ledger.Credit(e.db, 2, 1000, model.EntryRefund, 0)
	require.NoError(t, err)

	require.NoError(t, e.meetings.Join(m.ID, 2, now))
	require.Equal(t, 1, e.meetings.StartDue(now.Add(2*time.Minute)))

	return m
}

const twoStepGuide = "1단계: 정상에서 단체 사진\n2단계: 하산 후 막걸리 인증"

func TestSubmitStepPhoto(t *testing.T) {
	e := newTestEnv(t)
	m := e.started(t, twoStepGuide)

	up, err := e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, 0, "summit.jpg", []byte("img"))
	require.NoError(t, err)
	require.Equal(t, model.UploadApproved, up.Status)
	require.InDelta(t, 0.95, up.Confidence, 0.001)
	require.NotEmpty(t, up.UID)
	require.Contains(t, up.UploadedURL, "summit.jpg")

	require.Len(t, e.notifier.events, 1)
	require.Equal(t, model.UploadApproved, e.notifier.events[0].Status)
	require.Equal(t, 0, e.notifier.events[0].StepIndex)

	_, err = e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, 5, "x.jpg", nil)
	require.ErrorIs(t, err, ErrNoSuchStep)

	_, err = e.mgr.SubmitStepPhoto(context.Background(), m.ID, 99, 0, "x.jpg", nil)
	require.ErrorIs(t, err, meetings.ErrNotParticipant)

	_, err = e.mgr.SubmitStepPhoto(context.Background(), 999, 2, 0, "x.jpg", nil)
	require.ErrorIs(t, err, meetings.ErrNotFound)
}

func TestSubmitStepPhoto_Resubmit(t *testing.T) {
	e := newTestEnv(t)
	m := e.started(t, twoStepGuide)

	e.verifier.checkResult = &verify.Result{Status: verify.StatusRejected, Reasoning: "사진이 흐립니다"}

	up, err := e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, 0, "blurry.jpg", []byte("img"))
	require.NoError(t, err)
	require.Equal(t, model.UploadRejected, up.Status)

	e.verifier.checkResult = &verify.Result{Status: verify.StatusApproved, Confidence: 0.9}

	up2, err := e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, 0, "sharp.jpg", []byte("img"))
	require.NoError(t, err)
	require.Equal(t, up.ID, up2.ID)
	require.Equal(t, model.UploadApproved, up2.Status)
	require.NotEqual(t, up.UID, up2.UID)
	require.Empty(t, up2.Reasoning)

	// a single row per step, regardless of attempts
	require.Len(t, database.NewUploadQuery(e.db).Meeting(m.ID).User(2).Get(), 1)
}

func TestSubmitStepPhoto_VerifierDown(t *testing.T) {
	e := newTestEnv(t)
	m := e.started(t, twoStepGuide)

	e.verifier.checkErr = verify.ErrUnavailable

	up, err := e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, 0, "summit.jpg", []byte("img"))
	require.ErrorIs(t, err, verify.ErrUnavailable)
	require.NotNil(t, up)
	require.Equal(t, model.UploadPending, up.Status)

	// the pending row survives for polling
	saved := database.NewUploadQuery(e.db).UID(up.UID).One()
	require.NotNil(t, saved)
	require.Equal(t, model.UploadPending, saved.Status)
	require.Empty(t, e.notifier.events)
}

func TestStepStates(t *testing.T) {
	e := newTestEnv(t)
	m := e.started(t, twoStepGuide)

	states, err := e.mgr.StepStates(m.ID, 2)
	require.NoError(t, err)
	require.Len(t, states, 2)
	require.Equal(t, "1단계", states[0].Title)
	require.Equal(t, "정상에서 단체 사진", states[0].Description)
	require.Empty(t, states[0].Status)

	_, err = e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, 1, "makgeolli.jpg", []byte("img"))
	require.NoError(t, err)

	states, err = e.mgr.StepStates(m.ID, 2)
	require.NoError(t, err)
	require.Empty(t, states[0].Status)
	require.Equal(t, model.UploadApproved, states[1].Status)
	require.Contains(t, states[1].UploadedURL, "makgeolli.jpg")
}

func TestFinalize_GateBlocksUntilAllApproved(t *testing.T) {
	e := newTestEnv(t)
	m := e.started(t, twoStepGuide)

	before := e.ledger.Balance(2)

	require.ErrorIs(t, e.mgr.Finalize(m.ID, 2, nil, ""), ErrStepsIncomplete)
	require.Equal(t, before, e.ledger.Balance(2))

	_, err := e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, 0, "a.jpg", []byte("img"))
	require.NoError(t, err)

	ready, err := e.mgr.IsReadyForFinal(m.ID, 2)
	require.NoError(t, err)
	require.False(t, ready)

	require.ErrorIs(t, e.mgr.Finalize(m.ID, 2, nil, ""), ErrStepsIncomplete)
	require.Equal(t, before, e.ledger.Balance(2))
}

func TestFinalize_RewardAndCompletion(t *testing.T) {
	e := newTestEnv(t)
	m := e.started(t, twoStepGuide)

	// joined with 1000, escrowed 100
	require.Equal(t, 900, e.ledger.Balance(2))

	for i := 0; i < 2; i++ {
		_, err := e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, i, "p.jpg", []byte("img"))
		require.NoError(t, err)
	}

	ready, err := e.mgr.IsReadyForFinal(m.ID, 2)
	require.NoError(t, err)
	require.True(t, ready)

	rating := 5
	require.NoError(t, e.mgr.Finalize(m.ID, 2, &rating, "최고의 모임이었어요"))

	require.Equal(t, 1200, e.ledger.Balance(2))

	hist := e.ledger.History(2, 10, 0)
	require.Equal(t, model.EntryReward, hist[0].Type)
	require.Equal(t, 300, hist[0].Amount)
	require.Equal(t, m.ID, hist[0].MeetingID)

	p := database.NewParticipantQuery(e.db).Meeting(m.ID).User(2).One()
	require.Equal(t, model.ParticipantCompleted, p.Status)
	require.NotNil(t, p.Rating)
	require.Equal(t, 5, *p.Rating)
	require.Equal(t, "최고의 모임이었어요", p.Review)

	// upload state is gone and the meeting, its last participant done,
	// completed
	require.Empty(t, database.NewUploadQuery(e.db).Meeting(m.ID).User(2).Get())

	got := database.NewMeetingQuery(e.db).Id(m.ID).One()
	require.Equal(t, model.MeetingCompleted, got.Status)
	require.NotNil(t, got.ArchivedAt)

	// finalizing twice is rejected, with no double reward
	require.ErrorIs(t, e.mgr.Finalize(m.ID, 2, nil, ""), meetings.ErrNotParticipant)
	require.Equal(t, 1200, e.ledger.Balance(2))
}

func TestFinalize_MeetingStaysOpenWithOthersActive(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()

	m := &model.Meeting{
		HostID:          1,
		Title:           "북한산 등산",
		ScheduledAt:     now.Add(time.Minute),
		RecruitUntil:    now,
		MinParticipants: 1,
		MaxParticipants: 3,
		RequiredPoints:  100,
		BasePoints:      300,
		MissionGuide:    twoStepGuide,
	}
	require.NoError(t, e.meetings.Create(m))

	for _, u := range []uint{2, 3} {
		_, err := e.ledger.Credit(e.db, u, 1000, model.EntryRefund, 0)
		require.NoError(t, err)
		require.NoError(t, e.meetings.Join(m.ID, u, now))
	}

	require.Equal(t, 1, e.meetings.StartDue(now.Add(2*time.Minute)))

	for i := 0; i < 2; i++ {
		_, err := e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, i, "p.jpg", []byte("img"))
		require.NoError(t, err)
	}

	require.NoError(t, e.mgr.Finalize(m.ID, 2, nil, ""))

	got := database.NewMeetingQuery(e.db).Id(m.ID).One()
	require.Equal(t, model.MeetingInProgress, got.Status)
}

func TestPollPending(t *testing.T) {
	e := newTestEnv(t)
	m := e.started(t, twoStepGuide)

	e.verifier.checkErr = verify.ErrUnavailable

	up, err := e.mgr.SubmitStepPhoto(context.Background(), m.ID, 2, 0, "summit.jpg", []byte("img"))
	require.ErrorIs(t, err, verify.ErrUnavailable)

	// still pending on the service side: nothing to record
	e.verifier.statusResult[up.UID] = &verify.Result{Status: verify.StatusPending}
	require.Equal(t, 0, e.mgr.PollPending(context.Background()))

	e.verifier.statusResult[up.UID] = &verify.Result{Status: verify.StatusApproved, Confidence: 0.8}
	require.Equal(t, 1, e.mgr.PollPending(context.Background()))

	saved := database.NewUploadQuery(e.db).UID(up.UID).One()
	require.Equal(t, model.UploadApproved, saved.Status)
	require.Len(t, e.notifier.events, 1)

	// nothing pending remains
	require.Equal(t, 0, e.mgr.PollPending(context.Background()))
}

func TestSteps(t *testing.T) {
	e := newTestEnv(t)
	m := e.started(t, "3개 이상")

	steps, err := e.mgr.Steps(m.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	_, err = e.mgr.Steps(999)
	require.ErrorIs(t, err, meetings.ErrNotFound)
}

func TestFinalize_ErrorsAreSentinels(t *testing.T) {
	e := newTestEnv(t)

	require.ErrorIs(t, e.mgr.Finalize(999, 2, nil, ""), meetings.ErrNotFound)

	m := e.started(t, twoStepGuide)
	require.True(t, errors.Is(e.mgr.Finalize(m.ID, 99, nil, ""), meetings.ErrNotParticipant))
}
