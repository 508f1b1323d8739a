package main

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/moimapp/moim-server/internal/auth"
	"github.com/moimapp/moim-server/internal/database"
	"github.com/moimapp/moim-server/internal/model"
)

const (
	UsernameKey = "username"
	UserIDKey   = "user_id"
	AdminKey    = "admin"
)

func getTokenAuth(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := validateHeader(app, c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return fail(c, fiber.StatusUnauthorized, "로그인이 필요합니다.")
		}

		c.Locals(UsernameKey, claims.Login)
		c.Locals(UserIDKey, claims.UserID)
		c.Locals(AdminKey, claims.Admin)

		return c.Next()
	}
}

func validateHeader(app *App, header string) (*auth.Claims, error) {
	if header == "" {
		return nil, auth.ErrMissingToken
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, auth.ErrInvalidToken
	}

	return app.jwt.Validate(parts[1])
}

func Username(c *fiber.Ctx) string {
	u := c.Locals(UsernameKey)

	if u == nil {
		return ""
	}

	return u.(string)
}

func UserID(c *fiber.Ctx) uint {
	u := c.Locals(UserIDKey)

	if u == nil {
		return 0
	}

	return u.(uint)
}

type credentials struct {
	Login    string `json:"login"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func getRegisterHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var creds credentials

		if err := ctx.BodyParser(&creds); err != nil {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		creds.Login = strings.TrimSpace(creds.Login)

		if creds.Login == "" || creds.Password == "" {
			return fail(ctx, fiber.StatusBadRequest, "아이디와 비밀번호를 입력해 주세요.")
		}

		if database.NewUserQuery(app.dbm.DB()).Login(creds.Login).One() != nil {
			return fail(ctx, fiber.StatusConflict, "이미 사용 중인 아이디입니다.")
		}

		user := &model.User{Login: creds.Login, Name: creds.Name}

		if err := user.SetPassword(creds.Password); err != nil {
			return apiError(ctx, err)
		}

		if err := app.dbm.Create(user); err != nil {
			return apiError(ctx, err)
		}

		token, err := app.jwt.Generate(user)
		if err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, fiber.Map{"token": token, "user": user.DTO()})
	}
}

func getLoginHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var creds credentials

		if err := ctx.BodyParser(&creds); err != nil {
			return fail(ctx, fiber.StatusBadRequest, "요청 형식이 올바르지 않습니다.")
		}

		user := database.NewUserQuery(app.dbm.DB()).Login(creds.Login).One()

		if !user.CheckPassword(creds.Password) {
			return fail(ctx, fiber.StatusUnauthorized, "아이디 또는 비밀번호가 올바르지 않습니다.")
		}

		token, err := app.jwt.Generate(user)
		if err != nil {
			return apiError(ctx, err)
		}

		return ok(ctx, fiber.Map{"token": token, "user": user.DTO()})
	}
}
