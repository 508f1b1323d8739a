package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lmittmann/tint"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/moimapp/moim-server/internal/auth"
	"github.com/moimapp/moim-server/internal/database"
	"github.com/moimapp/moim-server/internal/ledger"
	"github.com/moimapp/moim-server/internal/meetings"
	"github.com/moimapp/moim-server/internal/missions"
	"github.com/moimapp/moim-server/internal/repository"
	"github.com/moimapp/moim-server/internal/verify"
	"github.com/moimapp/moim-server/internal/wshandler"
	"github.com/moimapp/moim-server/pkg/util"
)

var (
	gitRevision = "unknown"
	gitBranch   = "unknown"
)

type App struct {
	logger *slog.Logger
	config *AppConfig

	dbm      *database.DatabaseManager
	ledger   *ledger.Ledger
	meetings *meetings.Manager
	missions *missions.Manager
	users    *repository.UserFileSeeder
	jwt      *auth.JWTManager
	hub      *wshandler.Hub

	ctx context.Context
}

func NewApp(config *AppConfig, db *gorm.DB) *App {
	l := ledger.New(db)
	locks := util.NewKeyedMutex()
	hub := wshandler.NewHub()

	verifier := verify.NewClient(config.verifyURL, config.verifyToken, config.verifyTimeout)

	return &App{
		logger:   slog.Default(),
		config:   config,
		dbm:      database.New(db),
		ledger:   l,
		meetings: meetings.New(db, l, locks),
		missions: missions.New(db, l, locks, verifier, hub),
		users:    repository.NewUserFileSeeder(db, config.usersFile),
		jwt:      auth.NewJWTManager(config.jwtSecret, config.jwtTTL),
		hub:      hub,
	}
}

func (app *App) Run() {
	if err := app.dbm.Migrate(); err != nil {
		app.logger.Error("migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := app.users.Load(); err != nil {
		app.logger.Error("users file", slog.Any("error", err))
	}

	if err := app.users.Start(); err != nil {
		app.logger.Warn("users file watch", slog.Any("error", err))
	}

	defer app.users.Stop()

	var cancel context.CancelFunc

	app.ctx, cancel = context.WithCancel(context.Background())

	go app.sweeper()
	go app.poller()

	api := NewHTTP(app)

	go func() {
		if err := api.Listen(); err != nil {
			app.logger.Error("http", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	app.logger.Info("exiting...")
	cancel()

	_ = api.Shutdown()
}

// sweeper moves open meetings past their scheduled time to in_progress.
func (app *App) sweeper() {
	ticker := time.NewTicker(app.config.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case now := <-ticker.C:
			if n := app.meetings.StartDue(now); n > 0 {
				app.logger.Info(fmt.Sprintf("started %d due meetings", n))
			}
		}
	}
}

// poller re-checks pending photo verifications.
func (app *App) poller() {
	ticker := time.NewTicker(app.config.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.missions.PollPending(app.ctx)
		}
	}
}

func main() {
	fmt.Printf("version %s %s\n", gitRevision, gitBranch)

	var debug = flag.Bool("debug", false, "debug logging")
	var conf = flag.String("config", "moim_server.yml", "name of config file")
	flag.Parse()

	config, err := loadConfig(*conf)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	setupLogger(*debug)

	db, err := gorm.Open(sqlite.Open(viper.GetString("db")), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		panic(err)
	}

	NewApp(config, db).Run()
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))
}
