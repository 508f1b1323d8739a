package main

import (
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/moimapp/moim-server/internal/wshandler"
)

// getWsHandler upgrades to a websocket that pushes verification events to the
// authenticated user. The token is passed as a query parameter because
// browsers cannot set headers on websocket upgrades.
func getWsHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		claims, err := app.jwt.Validate(ctx.Query("token"))
		if err != nil {
			return fail(ctx, fiber.StatusUnauthorized, "로그인이 필요합니다.")
		}

		userID := claims.UserID

		return websocket.New(func(ws *websocket.Conn) {
			h := wshandler.NewHandler(app.logger, userID, ws)

			app.logger.Debug("ws listener connected", slog.Any("user", userID))
			app.hub.Add(h)
			h.Listen()
			app.logger.Debug("ws listener disconnected", slog.Any("user", userID))
		})(ctx)
	}
}
