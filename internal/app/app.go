package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"

	"github.com/nabilkencana/eportofolio-auth/config"
	httpadapter "github.com/nabilkencana/eportofolio-auth/internal/adapters/http"
	apiv1 "github.com/nabilkencana/eportofolio-auth/internal/adapters/http/api/v1"
	handlers "github.com/nabilkencana/eportofolio-auth/internal/adapters/http/api/v1/handlers"
	authmw "github.com/nabilkencana/eportofolio-auth/internal/adapters/http/middleware"
	natsadapter "github.com/nabilkencana/eportofolio-auth/internal/adapters/nats"
	repo "github.com/nabilkencana/eportofolio-auth/internal/adapters/postgres"
	"github.com/nabilkencana/eportofolio-auth/internal/adapters/storage"
	"github.com/nabilkencana/eportofolio-auth/internal/retry"
	"github.com/nabilkencana/eportofolio-auth/internal/usecase"
	pkglog "github.com/nabilkencana/eportofolio-auth/pkg/log"
)

type App struct {
	cfg      *config.Config
	logger   pkglog.Logger
	db       *repo.DB
	natsConn *nats.Conn
	echo     *echo.Echo
}

func New(ctx context.Context) (*App, error) {
	cfg := config.MustLoad()
	logger := pkglog.New(cfg.AppEnv)

	db, err := repo.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats connect failed, events disabled")
	}

	userRepo := repo.NewUserRepository(db.Gorm)
	achievementRepo := repo.NewAchievementRepository(db.Gorm)
	exec := retry.NewExecutor(cfg.DBRetryMax, cfg.DBRetryDelay, db, logger)

	issuer, err := usecase.NewTokenIssuer(cfg)
	if err != nil {
		return nil, err
	}

	var events usecase.EventPublisher
	if nc != nil {
		events = natsadapter.NewEventClient(nc, cfg.NATSUserRegistered)
	}

	var media storage.Client
	if cfg.MediaBaseURL != "" {
		media = storage.NewHTTPClient(cfg.MediaBaseURL, cfg.MediaAPIKey, cfg.MediaTimeout)
	}

	authService := usecase.NewAuthService(cfg, logger, userRepo, issuer, exec, events)
	achievementService := usecase.NewAchievementService(logger, achievementRepo, media, exec)

	authHandler := handlers.NewAuthHandler(authService, issuer)
	achievementHandler := handlers.NewAchievementHandler(achievementService)
	authMW := authmw.NewAuthMiddleware(issuer)
	router := httpadapter.NewRouter(cfg, apiv1.NewRouter(authHandler, achievementHandler, authMW.Handler))

	if nc != nil {
		verifyHandler := natsadapter.NewVerifyHandler(issuer)
		if err := verifyHandler.Subscribe(nc, cfg.NATSVerifySubject, cfg.AppName); err != nil {
			logger.Warn().Err(err).Msg("verify subscription failed")
		}
	}

	e := echo.New()
	router.Setup(e)

	return &App{cfg: cfg, logger: logger, db: db, natsConn: nc, echo: e}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		errCh <- a.echo.Start(fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort))
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
