package main

import (
	"github.com/gofiber/fiber/v2"

	"github.com/moimapp/moim-server/internal/model"
)

func addPointsRoutes(app *App, g fiber.Router) {
	g.Get("/points/balance", getBalanceHandler(app))
	g.Get("/points/history", getHistoryHandler(app))
}

func getBalanceHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ok(ctx, fiber.Map{"points": app.ledger.Balance(UserID(ctx))})
	}
}

func getHistoryHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		entries := app.ledger.History(UserID(ctx), ctx.QueryInt("limit", 50), ctx.QueryInt("offset", 0))

		res := make([]*model.PointEntryDTO, len(entries))

		for i, e := range entries {
			res[i] = model.ToPointEntryDTO(e)
		}

		return ok(ctx, res)
	}
}
