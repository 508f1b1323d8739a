package main

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/moimapp/moim-server/internal/model"
)

func addMeetingRoutes(app *App, g fiber.Router) {
	g.Get("/meetings", getMeetingsHandler(app))
	g.Post("/meetings", getMeetingCreateHandler(app))
	g.Get("/meetings/:id", getMeetingHandler(app))
	g.Post("/meetings/:id/join", getJoinHandler(app))
	g.Post("/meetings/:id/leave", getLeaveHandler(app))
	g.Post("/meetings/:id/cancel", getCancelHandler(app))
	g.Post("/meetings/:id/checkin", getCheckInHandler(app))
	g.Post("/meetings/:id/noshow", getNoShowHandler(app))
}

func getMeetingsHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var status []string
		if s := ctx.Query("status"); s != "" {
			status = []string{s}
		}

		ms := app.meetings.List(status, ctx.QueryInt("limit", 50), ctx.QueryInt("offset", 0))

		return ok(ctx, toMeetingDTOs(ms, false))
	}
}

type meetingForm struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Place           string    `json:"place"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	RecruitUntil    time.Time `json:"recruit_until"`
	MinParticipants int       `json:"min_participants"`
	MaxParticipants int       `json:"max_participants"`
	RequiredPoints  int       `json:"required_points"`
	BasePoints      int       `json:"base_points"`
	MissionGuide    string    `json:"mission_guide"`
}

func getMeetingCreateHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var form meetingForm

		if err := ctx.BodyParser(&form); err != nil {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		m := &model.Meeting{
			HostID:          UserID(ctx),
			Title:           form.Title,
			Description:     form.Description,
			Place:           form.Place,
			ScheduledAt:     form.ScheduledAt,
			RecruitUntil:    form.RecruitUntil,
			MinParticipants: form.MinParticipants,
			MaxParticipants: form.MaxParticipants,
			RequiredPoints:  form.RequiredPoints,
			BasePoints:      form.BasePoints,
			MissionGuide:    form.MissionGuide,
		}

		if err := app.meetings.Create(m); err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, model.ToMeetingDTO(m, false))
	}
}

func getMeetingHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := meetingID(ctx)
		if err != nil {
			return apiError(ctx, err)
		}

		m, err := app.meetings.Get(id, time.Now())
		if err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, model.ToMeetingDTO(m, true))
	}
}

func getJoinHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := meetingID(ctx)
		if err != nil {
			return apiError(ctx, err)
		}

		if err := app.meetings.Join(id, UserID(ctx), time.Now()); err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, fiber.Map{"points": app.ledger.Balance(UserID(ctx))})
	}
}

func getLeaveHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := meetingID(ctx)
		if err != nil {
			return apiError(ctx, err)
		}

		refund, err := app.meetings.Leave(id, UserID(ctx), time.Now())
		if err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, fiber.Map{
			"refund":        refund.Refund,
			"penalty":       refund.Penalty,
			"time_category": refund.TimeCategory,
			"points":        app.ledger.Balance(UserID(ctx)),
		})
	}
}

func getCancelHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := meetingID(ctx)
		if err != nil {
			return apiError(ctx, err)
		}

		var form struct {
			Reason string `json:"reason"`
		}

		if err := ctx.BodyParser(&form); err != nil {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		penalty, err := app.meetings.Cancel(id, UserID(ctx), form.Reason, time.Now())
		if err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, fiber.Map{
			"host_penalty":  penalty.PenaltyAmount,
			"refunded":      penalty.RefundToParticipants,
			"time_category": penalty.TimeCategory,
		})
	}
}

func getCheckInHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := meetingID(ctx)
		if err != nil {
			return apiError(ctx, err)
		}

		if err := app.meetings.CheckIn(id, UserID(ctx), time.Now()); err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, nil)
	}
}

func getNoShowHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := meetingID(ctx)
		if err != nil {
			return apiError(ctx, err)
		}

		var form struct {
			UserID uint `json:"user_id"`
		}

		if err := ctx.BodyParser(&form); err != nil || form.UserID == 0 {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		if err := app.meetings.MarkNoShow(id, UserID(ctx), form.UserID, time.Now()); err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, nil)
	}
}
