package main

import (
	"embed"
	"errors"
	"net/http"
	"runtime/pprof"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moimapp/moim-server/internal/ledger"
	"github.com/moimapp/moim-server/internal/meetings"
	"github.com/moimapp/moim-server/internal/missions"
	"github.com/moimapp/moim-server/internal/model"
	"github.com/moimapp/moim-server/internal/verify"
	"github.com/moimapp/moim-server/pkg/log"
)

//go:embed templates
var templates embed.FS

type HTTPServer struct {
	f    *fiber.App
	addr string
}

func NewHTTP(app *App) *HTTPServer {
	engine := html.NewFileSystem(http.FS(templates), ".html")

	f := fiber.New(fiber.Config{
		EnablePrintRoutes:     false,
		DisableStartupMessage: true,
		Views:                 engine,
		BodyLimit:             16 * 1024 * 1024,
	})

	f.Use(log.NewFiberLogger(&log.LoggerConfig{
		Name:          "api",
		UserGetter:    Username,
		DoMetrics:     true,
		LogErrorsOnly: true,
	}))

	f.Get("/", getIndexHandler(app))
	f.Get("/stack", getStackHandler())
	f.Get("/metrics", getMetricsHandler())

	f.Post("/api/auth/register", getRegisterHandler(app))
	f.Post("/api/auth/login", getLoginHandler(app))

	f.Get("/ws", getWsHandler(app))

	api := f.Group("/api", getTokenAuth(app))

	addMeetingRoutes(app, api)
	addMissionRoutes(app, api)
	addPointsRoutes(app, api)

	return &HTTPServer{f: f, addr: app.config.apiAddr}
}

func (h *HTTPServer) Listen() error {
	return h.f.Listen(h.addr)
}

func (h *HTTPServer) Shutdown() error {
	return h.f.Shutdown()
}

func getIndexHandler(app *App) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		ms := app.meetings.List(nil, 50, 0)

		data := map[string]any{
			"version":  getVersion(),
			"meetings": toMeetingDTOs(ms, false),
		}

		return ctx.Render("templates/index", data)
	}
}

func getStackHandler() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return pprof.Lookup("goroutine").WriteTo(ctx.Response().BodyWriter(), 1)
	}
}

func getMetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{DisableCompression: true},
	))
}

func getVersion() string {
	return gitRevision + ":" + gitBranch
}

func toMeetingDTOs(ms []*model.Meeting, withParticipants bool) []*model.MeetingDTO {
	res := make([]*model.MeetingDTO, len(ms))

	for i, m := range ms {
		res[i] = model.ToMeetingDTO(m, withParticipants)
	}

	return res
}

func ok(ctx *fiber.Ctx, data any) error {
	return ctx.JSON(fiber.Map{"success": true, "data": data})
}

func fail(ctx *fiber.Ctx, status int, message string) error {
	return ctx.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

// apiError translates the engine's error set into user-facing responses.
func apiError(ctx *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, meetings.ErrNotFound):
		return fail(ctx, fiber.StatusNotFound, "모임을 찾을 수 없습니다.")
	case errors.Is(err, ledger.ErrInsufficientPoints):
		return fail(ctx, fiber.StatusBadRequest, "포인트가 부족합니다.")
	case errors.Is(err, meetings.ErrMeetingFull):
		return fail(ctx, fiber.StatusConflict, "모집 인원이 가득 찼습니다.")
	case errors.Is(err, meetings.ErrAlreadyJoined):
		return fail(ctx, fiber.StatusConflict, "이미 참여 중인 모임입니다.")
	case errors.Is(err, meetings.ErrNotJoinable):
		return fail(ctx, fiber.StatusConflict, "참여할 수 없는 모임입니다.")
	case errors.Is(err, meetings.ErrNotParticipant):
		return fail(ctx, fiber.StatusConflict, "참여자가 아닙니다.")
	case errors.Is(err, meetings.ErrNotHost):
		return fail(ctx, fiber.StatusForbidden, "호스트만 가능한 작업입니다.")
	case errors.Is(err, meetings.ErrNotCancellable):
		return fail(ctx, fiber.StatusConflict, "취소할 수 없는 모임입니다.")
	case errors.Is(err, meetings.ErrEmptyReason):
		return fail(ctx, fiber.StatusBadRequest, "취소 사유를 입력해 주세요.")
	case errors.Is(err, meetings.ErrNotStarted):
		return fail(ctx, fiber.StatusConflict, "아직 시작되지 않은 모임입니다.")
	case errors.Is(err, meetings.ErrCheckedIn):
		return fail(ctx, fiber.StatusConflict, "이미 체크인한 참여자입니다.")
	case errors.Is(err, meetings.ErrInvalidMeeting):
		return fail(ctx, fiber.StatusBadRequest, "모임 정보가 올바르지 않습니다.")
	case errors.Is(err, missions.ErrNoSuchStep):
		return fail(ctx, fiber.StatusBadRequest, "존재하지 않는 인증 단계입니다.")
	case errors.Is(err, missions.ErrStepsIncomplete):
		return fail(ctx, fiber.StatusConflict, "모든 인증 단계를 완료해 주세요.")
	case errors.Is(err, verify.ErrUnavailable):
		return fail(ctx, fiber.StatusBadGateway, "인증 서비스에 연결할 수 없습니다. 잠시 후 다시 시도해 주세요.")
	default:
		return fail(ctx, fiber.StatusInternalServerError, "서버 오류가 발생했습니다.")
	}
}

func meetingID(ctx *fiber.Ctx) (uint, error) {
	id, err := ctx.ParamsInt("id")
	if err != nil || id < 1 {
		return 0, meetings.ErrNotFound
	}

	return uint(id), nil
}
