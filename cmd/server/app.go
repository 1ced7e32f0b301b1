package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/availability"
	"github.com/iliyamo/seat-reservation-engine/internal/booking"
	"github.com/iliyamo/seat-reservation-engine/internal/broadcast"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/config"
	"github.com/iliyamo/seat-reservation-engine/internal/database"
	"github.com/iliyamo/seat-reservation-engine/internal/handler"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
	"github.com/iliyamo/seat-reservation-engine/internal/repository/memory"
	"github.com/iliyamo/seat-reservation-engine/internal/router"
	queue_publisher "github.com/iliyamo/seat-reservation-engine/internal/service"
	"github.com/iliyamo/seat-reservation-engine/internal/sweeper"
	"github.com/iliyamo/seat-reservation-engine/internal/waitlist"
	"github.com/iliyamo/seat-reservation-engine/internal/worker"
)

type app struct {
	http  *echo.Echo
	loops []*worker.Loop

	bookings    *booking.Service
	broadcaster *broadcast.Broadcaster
	publisher   *queue_publisher.QueuePublisher
	rdb         *redis.Client
	db          *sqlx.DB
	log         *zap.Logger
}

func build(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{log: log}
	clk := clock.Real{}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable; cache, rate limiting and redis broadcasts disabled", zap.Error(err))
	} else {
		a.rdb = rdb
	}

	var pubs broadcast.Multi
	if cfg.Realtime.RedisEnabled && a.rdb != nil {
		pubs = append(pubs, broadcast.NewRedisPublisher(a.rdb))
	}
	if cfg.Realtime.PubNubEnabled() {
		pubs = append(pubs, broadcast.NewPubNubPublisher(
			cfg.Realtime.PubNubPublishKey,
			cfg.Realtime.PubNubSubscribeKey,
			cfg.Realtime.PubNubSecretKey,
			cfg.Realtime.PubNubUserID,
		))
	}
	var pub broadcast.Publisher = broadcast.Nop{}
	switch len(pubs) {
	case 0:
	case 1:
		pub = pubs[0]
	default:
		pub = pubs
	}
	a.broadcaster = broadcast.New(pub, broadcast.Options{
		ChannelPrefix: cfg.Realtime.ChannelPrefix,
		Timeout:       cfg.Realtime.Timeout,
	}, log, clk)
	log.Info("realtime publisher", zap.String("publisher", pub.Name()))

	avail := availability.New(store, clk, log)
	led := ledger.New(store, clk, a.broadcaster, avail, log, ledger.Options{
		HoldDuration: cfg.Engine.HoldDuration,
		MaxSeats:     cfg.Engine.MaxSeatsPerBooking,
	})
	wl := waitlist.New(store, clk, avail, log, waitlist.Options{
		Window:      cfg.Engine.WaitlistWindow,
		MaxQuantity: cfg.Engine.MaxSeatsPerBooking,
		BatchSize:   cfg.Engine.SweepBatchSize,
	})

	deps := booking.Deps{
		Store:        store,
		Clock:        clk,
		Ledger:       led,
		Availability: avail,
		Broadcaster:  a.broadcaster,
		Promoter:     wl,
		Logger:       log,
	}
	if cfg.Broker.EventsEnabled {
		a.publisher = queue_publisher.New(cfg.Broker.URL, log)
		deps.Notifier = a.publisher
	}
	a.bookings = booking.New(deps, booking.Options{
		ConfirmWindow: cfg.Engine.ConfirmWindow,
		PaymentWindow: cfg.Engine.PaymentWindow,
		MaxQuantity:   cfg.Engine.MaxSeatsPerBooking,
	})

	sw := sweeper.New(sweeper.Deps{
		Store:        store,
		Clock:        clk,
		Bookings:     a.bookings,
		Ledger:       led,
		Waitlist:     wl,
		Availability: avail,
		Broadcaster:  a.broadcaster,
		Logger:       log,
	}, cfg.Engine.SweepBatchSize)

	a.loops = []*worker.Loop{
		worker.New("expiry-sweeper", cfg.Engine.SweepInterval, sw.Job, log),
		worker.New("waitlist-promoter", cfg.Engine.PromoteInterval, wl.ProcessAll, log),
	}

	var mw router.Middleware
	if a.rdb != nil {
		mw.Cache = middleware.NewRedisCache(cfg.Cache, a.rdb, log)
		mw.RateLimit = middleware.NewTokenBucket(cfg.RateLimit, a.rdb, log)
	}
	a.http = router.New(router.Handlers{
		Availability: handler.NewAvailabilityHandler(avail),
		Holds:        handler.NewHoldHandler(led),
		Bookings:     handler.NewBookingHandler(a.bookings),
		Waitlist:     handler.NewWaitlistHandler(wl, a.bookings),
		Admin:        handler.NewAdminHandler(sw, wl),
	}, mw, cfg.JWTSecret, log)

	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		st := memory.New()
		seedDemo(st)
		a.log.Warn("using in-memory store; state is lost on restart")
		return st, nil
	}

	db, err := database.Open(cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.log.Info("schema applied")
	}
	return repository.NewMySQLStore(db), nil
}

// seedDemo adds one seated pool and one general admission pool so a fresh
// in-memory server has something to book.
func seedDemo(st *memory.Store) {
	hall := st.AddPool(model.Pool{
		Name:      "Main Hall",
		Capacity:  40,
		Price:     decimal.RequireFromString("12.50"),
		Published: true,
	})
	seats := make([]model.Seat, 0, hall.Capacity)
	for _, row := range []string{"A", "B", "C", "D"} {
		for n := uint32(1); n <= 10; n++ {
			seats = append(seats, model.Seat{Section: "stalls", RowLabel: row, Number: n})
		}
	}
	st.AddSeats(hall.ID, seats...)

	st.AddPool(model.Pool{
		Name:      "Standing Area",
		Capacity:  200,
		Price:     decimal.RequireFromString("8.00"),
		Published: true,
	})
}

func (a *app) close() {
	a.bookings.Flush()
	a.broadcaster.Flush()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("close queue publisher", zap.Error(err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
