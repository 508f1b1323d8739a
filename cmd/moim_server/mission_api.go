package main

import (
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func addMissionRoutes(app *App, g fiber.Router) {
	g.Post("/mission/verify/photo", getVerifyPhotoHandler(app))
	g.Get("/mission/verify/status", getVerifyStatusHandler(app))
	g.Post("/mission/submit", getMissionSubmitHandler(app))
}

func getVerifyPhotoHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		mid, err := strconv.Atoi(ctx.FormValue("meeting_id"))
		if err != nil || mid < 1 {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		stepIndex, err := strconv.Atoi(ctx.FormValue("step_index"))
		if err != nil {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		fh, err := ctx.FormFile("photo")
		if err != nil {
			return fail(ctx, fiber.StatusBadRequest, "사진을 첨부해 주세요.")
		}

		f, err := fh.Open()
		if err != nil {
			return apiError(ctx, err)
		}

		defer f.Close()

		photo, err := io.ReadAll(f)
		if err != nil {
			return apiError(ctx, err)
		}

		up, err := app.missions.SubmitStepPhoto(ctx.Context(), uint(mid), UserID(ctx), stepIndex, fh.Filename, photo)
		if err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, fiber.Map{
			"status":       up.Status,
			"confidence":   up.Confidence,
			"reasoning":    up.Reasoning,
			"uploaded_url": up.UploadedURL,
		})
	}
}

func getVerifyStatusHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		mid := ctx.QueryInt("meeting_id")
		if mid < 1 {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		states, err := app.missions.StepStates(uint(mid), UserID(ctx))
		if err != nil {
			return apiError(ctx, err)
		}

		ready, err := app.missions.IsReadyForFinal(uint(mid), UserID(ctx))
		if err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, fiber.Map{"steps": states, "ready": ready})
	}
}

func getMissionSubmitHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var form struct {
			MeetingID  uint   `json:"meeting_id"`
			Rating     *int   `json:"rating"`
			ReviewText string `json:"review_text"`
		}

		if err := ctx.BodyParser(&form); err != nil || form.MeetingID == 0 {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		if form.Rating != nil && (*form.Rating < 1 || *form.Rating > 5) {
			return fail(ctx, fiber.StatusBadRequest, "평점은 1에서 5 사이여야 합니다.")
		}

		if err := app.missions.Finalize(form.MeetingID, UserID(ctx), form.Rating, form.ReviewText); err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, fiber.Map{"points": app.ledger.Balance(UserID(ctx))})
	}
}
