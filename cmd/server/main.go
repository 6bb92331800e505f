package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/playspot/internal/availability"
	"github.com/iliyamo/playspot/internal/booking"
	"github.com/iliyamo/playspot/internal/config"
	"github.com/iliyamo/playspot/internal/database"
	"github.com/iliyamo/playspot/internal/handler"
	"github.com/iliyamo/playspot/internal/middleware"
	"github.com/iliyamo/playspot/internal/model"
	"github.com/iliyamo/playspot/internal/obs"
	"github.com/iliyamo/playspot/internal/pricing"
	"github.com/iliyamo/playspot/internal/queue"
	"github.com/iliyamo/playspot/internal/repository"
	"github.com/iliyamo/playspot/internal/reservation"
	"github.com/iliyamo/playspot/internal/router"
	queue_publisher "github.com/iliyamo/playspot/internal/service"
	"github.com/iliyamo/playspot/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional outside development
	logger := log.New("playspot")

	cfg := config.Load()
	eng, err := config.LoadEngine()
	if err != nil {
		logger.Fatalf("engine config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if eng.OTLPEndpoint != "" {
		shutdown, err := obs.InitTracer(ctx, "playspot", eng.OTLPEndpoint, cfg.Env)
		if err != nil {
			logger.Fatalf("tracing: %v", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepo(db)
	if cfg.AdminEmail != "" {
		_, err := users.Create(ctx, cfg.AdminEmail, cfg.AdminPassword, model.RoleAdmin, cfg.BcryptCost)
		switch {
		case err == nil:
			logger.Infof("created admin %s", cfg.AdminEmail)
		case errors.Is(err, repository.ErrEmailExists):
		default:
			logger.Fatalf("bootstrap admin: %v", err)
		}
	}

	clock := utils.RealClock{}
	var store availability.Store
	switch eng.AvailabilityBackend {
	case "memory":
		store = availability.NewMemoryStore(clock)
	default:
		store = repository.NewSlotStatusRepo(db, clock)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unreachable: sessions in memory, no rate limiting or cache")
	} else {
		defer rdb.Close()
	}
	var sessions booking.SessionStore
	if eng.SessionBackend == "redis" && rdb != nil {
		sessions = booking.NewRedisSessions(rdb, eng.SessionTTL, clock)
	} else {
		sessions = booking.NewMemorySessions(eng.SessionTTL, clock)
	}

	fee := pricing.Calculator{FeePercent: eng.ServiceFeePercent}
	mgr := reservation.NewManager(store, reservation.Options{
		HoldTTL:  eng.HoldTTL,
		Pricer:   &fee,
		Clock:    clock,
		Location: eng.Location(),
	})
	availability.NewSweeper(store, eng.SweepInterval).Start(ctx)

	deps := handler.BookingDeps{
		Grounds:  repository.NewGroundRepo(db),
		Bookings: repository.NewBookingRepo(db),
		Manager:  mgr,
		Sessions: sessions,
	}
	if eng.QueueEnabled {
		deps.Events = queue_publisher.New(eng.RabbitMQURL)
		go queue.StartBookingConsumer(ctx, eng.RabbitMQURL, &queue.BookingLog{Path: "logs/booking.log"})
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			c.Logger().Infof("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewPublicHandler(deps.Grounds, mgr),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterReservations(e, handler.NewReservationHandler(deps),
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterOwner(e, handler.NewOwnerHandler(deps), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
