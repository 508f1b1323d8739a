package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/moimapp/moim-server/internal/model"
)

type TestApp struct {
	*App
	api *HTTPServer
}

func User(login, pass string) *model.User {
	u := &model.User{Login: login}
	if err := u.SetPassword(pass); err != nil {
		panic(err)
	}

	return u
}

func NewTestApp() *TestApp {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}

	sqlDB.SetMaxOpenConns(1)

	config := &AppConfig{
		apiAddr:       "localhost:1234",
		usersFile:     os.DevNull,
		jwtSecret:     "test-secret",
		jwtTTL:        time.Hour,
		verifyURL:     "http://localhost:1",
		verifyTimeout: time.Millisecond * 100,
	}

	app := &TestApp{App: NewApp(config, db)}

	if err := app.dbm.Migrate(); err != nil {
		panic(err)
	}

	_ = app.dbm.Save(User("host", "1111"))
	_ = app.dbm.Save(User("kim", "2222"))

	app.api = NewHTTP(app.App)

	return app
}

func (app *TestApp) Req(method, url, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Add("Authorization", "Bearer "+token)
	}

	return app.api.f.Test(req, 3000)
}

func (app *TestApp) PostJSON(url, token string, obj any) (*http.Response, error) {
	d, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(d))
	if err != nil {
		return nil, err
	}

	req.Header.Add(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Add(fiber.HeaderAccept, fiber.MIMEApplicationJSON)

	if token != "" {
		req.Header.Add("Authorization", "Bearer "+token)
	}

	return app.api.f.Test(req, 3000)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, resp *http.Response) *envelope {
	t.Helper()

	e := new(envelope)
	require.NotNil(t, resp.Body)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(e))

	return e
}

func (app *TestApp) login(t *testing.T, login, password string) string {
	t.Helper()

	resp, err := app.PostJSON("/api/auth/login", "", fiber.Map{"login": login, "password": password})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data struct {
		Token string `json:"token"`
	}

	e := decode(t, resp)
	require.True(t, e.Success)
	require.NoError(t, json.Unmarshal(e.Data, &data))
	require.NotEmpty(t, data.Token)

	return data.Token
}

func (app *TestApp) fund(t *testing.T, login string, amount int) uint {
	t.Helper()

	u := app.dbm.UserQuery().Login(login).One()
	require.NotNil(t, u)

	_, err := app.ledger.Credit(app.dbm.DB(), u.ID, amount, model.EntryRefund, 0)
	require.NoError(t, err)

	return u.ID
}

func TestLogin(t *testing.T) {
	app := NewTestApp()

	for _, d := range []struct {
		login string
		psw   string
		ok    bool
	}{
		{"host", "1111", true},
		{"host", "wrong", false},
		{"kim", "2222", true},
		{"nobody", "1", false},
	} {
		t.Run("login_as_"+d.login, func(t *testing.T) {
			resp, err := app.PostJSON("/api/auth/login", "", fiber.Map{"login": d.login, "password": d.psw})
			require.NoError(t, err)

			if d.ok {
				require.Equal(t, fiber.StatusOK, resp.StatusCode)
			} else {
				require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	app := NewTestApp()

	resp, err := app.PostJSON("/api/auth/register", "", fiber.Map{"login": "lee", "password": "pw", "name": "이영희"})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	e := decode(t, resp)
	require.True(t, e.Success)

	// duplicate login
	resp, err = app.PostJSON("/api/auth/register", "", fiber.Map{"login": "lee", "password": "pw2"})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// missing password
	resp, err = app.PostJSON("/api/auth/register", "", fiber.Map{"login": "park"})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	app := NewTestApp()

	for _, url := range []string{"/api/meetings", "/api/points/balance", "/api/points/history"} {
		resp, err := app.Req("GET", url, "", nil)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, url)
	}

	resp, err := app.Req("GET", "/api/meetings", "garbage-token", nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMeetingFlow(t *testing.T) {
	app := NewTestApp()

	hostToken := app.login(t, "host", "1111")
	kimToken := app.login(t, "kim", "2222")

	app.fund(t, "kim", 1000)

	now := time.Now()

	resp, err := app.PostJSON("/api/meetings", hostToken, fiber.Map{
		"title":            "한강 러닝",
		"scheduled_at":     now.Add(26 * time.Hour),
		"recruit_until":    now.Add(25 * time.Hour),
		"min_participants": 1,
		"max_participants": 3,
		"required_points":  100,
		"base_points":      50,
	})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var meeting model.MeetingDTO

	e := decode(t, resp)
	require.True(t, e.Success)
	require.NoError(t, json.Unmarshal(e.Data, &meeting))
	require.Equal(t, model.MeetingRecruiting, meeting.Status)

	base := fmt.Sprintf("/api/meetings/%d", meeting.ID)

	// join escrows the deposit
	resp, err = app.PostJSON(base+"/join", kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var joined struct {
		Points int `json:"points"`
	}

	e = decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &joined))
	require.Equal(t, 900, joined.Points)

	// double join conflicts
	resp, err = app.PostJSON(base+"/join", kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// insufficient balance is a user-facing message
	resp, err = app.PostJSON(base+"/join", hostToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	e = decode(t, resp)
	require.False(t, e.Success)
	require.Equal(t, "포인트가 부족합니다.", e.Message)

	// meeting detail shows the participant
	resp, err = app.Req("GET", base, kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	e = decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &meeting))
	require.Equal(t, 1, meeting.CurrentCount)
	require.Len(t, meeting.Participants, 1)

	// early leave refunds in full
	resp, err = app.PostJSON(base+"/leave", kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var left struct {
		Refund       int    `json:"refund"`
		Penalty      int    `json:"penalty"`
		TimeCategory string `json:"time_category"`
		Points       int    `json:"points"`
	}

	e = decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &left))
	require.Equal(t, 100, left.Refund)
	require.Equal(t, 0, left.Penalty)
	require.Equal(t, 1000, left.Points)
}

func TestCancelFlow(t *testing.T) {
	app := NewTestApp()

	hostToken := app.login(t, "host", "1111")
	kimToken := app.login(t, "kim", "2222")

	app.fund(t, "kim", 500)
	app.fund(t, "host", 500)

	now := time.Now()

	resp, err := app.PostJSON("/api/meetings", hostToken, fiber.Map{
		"title":            "보드게임 모임",
		"scheduled_at":     now.Add(time.Hour),
		"recruit_until":    now.Add(30 * time.Minute),
		"min_participants": 1,
		"max_participants": 4,
		"required_points":  100,
	})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var meeting model.MeetingDTO

	e := decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &meeting))

	base := fmt.Sprintf("/api/meetings/%d", meeting.ID)

	resp, err = app.PostJSON(base+"/join", kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// only the host may cancel
	resp, err = app.PostJSON(base+"/cancel", kimToken, fiber.Map{"reason": "사정이 생겼어요"})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// reason is mandatory
	resp, err = app.PostJSON(base+"/cancel", hostToken, fiber.Map{"reason": "  "})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.PostJSON(base+"/cancel", hostToken, fiber.Map{"reason": "장소 예약 실패"})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var cancelled struct {
		HostPenalty int `json:"host_penalty"`
		Refunded    int `json:"refunded"`
	}

	e = decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &cancelled))
	require.Equal(t, 100, cancelled.HostPenalty)
	require.Equal(t, 100, cancelled.Refunded)

	// participant got the deposit back, host paid the penalty
	resp, err = app.Req("GET", "/api/points/balance", kimToken, nil)
	require.NoError(t, err)

	var balance struct {
		Points int `json:"points"`
	}

	e = decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &balance))
	require.Equal(t, 500, balance.Points)

	resp, err = app.Req("GET", "/api/points/balance", hostToken, nil)
	require.NoError(t, err)

	e = decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &balance))
	require.Equal(t, 400, balance.Points)

	// cancelled is terminal
	resp, err = app.PostJSON(base+"/join", kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestVerifyStatusEndpoint(t *testing.T) {
	app := NewTestApp()

	hostToken := app.login(t, "host", "1111")
	kimToken := app.login(t, "kim", "2222")

	app.fund(t, "kim", 1000)

	now := time.Now()

	resp, err := app.PostJSON("/api/meetings", hostToken, fiber.Map{
		"title":            "독서 모임",
		"scheduled_at":     now.Add(2 * time.Hour),
		"recruit_until":    now.Add(time.Hour),
		"min_participants": 1,
		"max_participants": 2,
		"required_points":  100,
		"mission_guide":    "1단계: 책 표지 인증\n2단계: 독서 노트 인증",
	})
	require.NoError(t, err)

	var meeting model.MeetingDTO

	e := decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &meeting))

	resp, err = app.PostJSON(fmt.Sprintf("/api/meetings/%d/join", meeting.ID), kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Req("GET", fmt.Sprintf("/api/mission/verify/status?meeting_id=%d", meeting.ID), kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status struct {
		Ready bool                  `json:"ready"`
		Steps []*model.StepStateDTO `json:"steps"`
	}

	e = decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &status))
	require.False(t, status.Ready)
	require.Len(t, status.Steps, 2)
	require.Equal(t, "1단계", status.Steps[0].Title)
	require.Empty(t, status.Steps[0].Status)

	// unfinished mission cannot be submitted
	resp, err = app.PostJSON("/api/mission/submit", kimToken, fiber.Map{"meeting_id": meeting.ID})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	e = decode(t, resp)
	require.Equal(t, "모든 인증 단계를 완료해 주세요.", e.Message)
}

func TestHistoryEndpoint(t *testing.T) {
	app := NewTestApp()

	kimToken := app.login(t, "kim", "2222")
	id := app.fund(t, "kim", 300)

	_, err := app.ledger.Debit(app.dbm.DB(), id, 100, model.EntryPayment, 1)
	require.NoError(t, err)

	resp, err := app.Req("GET", "/api/points/history?limit=10", kimToken, nil)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var entries []*model.PointEntryDTO

	e := decode(t, resp)
	require.NoError(t, json.Unmarshal(e.Data, &entries))
	require.Len(t, entries, 2)
	require.Equal(t, model.EntryPayment, entries[0].Type)
	require.Equal(t, -100, entries[0].Amount)
	require.Equal(t, 200, entries[0].BalanceAfter)
}
