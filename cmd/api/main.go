package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/auth"
	"github.com/ariefcatur/go-rescue-bags/internal/catalog"
	"github.com/ariefcatur/go-rescue-bags/internal/config"
	"github.com/ariefcatur/go-rescue-bags/internal/httpx"
	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	kafkax "github.com/ariefcatur/go-rescue-bags/internal/kafka"
	"github.com/ariefcatur/go-rescue-bags/internal/location"
	"github.com/ariefcatur/go-rescue-bags/internal/onboarding"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
	"github.com/ariefcatur/go-rescue-bags/internal/redisx"
	"github.com/ariefcatur/go-rescue-bags/internal/reservation"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := config.NewLogger(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	reserved := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderReserved, 1024, log)
	partial := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicReservationPartial, 256, log)
	locUpdates := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicCustomerLocationUpdated, 1024, log)
	producers := []*kafkax.Producer{reserved, partial, locUpdates}
	for _, p := range producers {
		p.Start()
	}


	// Services
	sessions := &identity.Sessions{
		Resolver: &identity.Resolver{Store: &identity.Repo{DB: db}},
		Redis:    rdb,
		Log:      log,
	}
	cache := &location.Cache{Redis: rdb}
	locSvc := &location.Service{Cache: cache, Updates: locUpdates, Service: cfg.ServiceName, Log: log}
	bags := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	tx, err := newReservationTx(cfg, db, rdb, &reservation.PGStore{Bags: bags, Orders: orderRepo})
	if err != nil {
		log.WithError(err).Fatal("reservation lock")
	}
	flow := &reservation.Flow{
		Tx:       tx,
		Reserved: reserved,
		Partial:  partial,
		Service:  cfg.ServiceName,
		Log:      log,
	}

	router := httpx.NewRouter(log)
	httpx.Mount(router, &auth.Verifier{Secret: []byte(cfg.JWTSecret)},
		[]httpx.Registrar{
			&httpx.CatalogHandler{Query: &catalog.Query{Store: bags, Log: log}, Cache: cache, Log: log},
			&httpx.LocationHandler{Service: locSvc, Cache: cache, Sessions: sessions, Log: log},
		},
		&httpx.ReservationsHandler{
			Flow:     flow,
			Orders:   orderRepo,
			Sessions: sessions,
			Redis:    rdb,
			Limiter:  httpx.NewKeyedLimiter(cfg.ReserveRPS, 2),
			Log:      log,
		},
		&httpx.AuthHandler{
			Provider: &auth.Client{BaseURL: cfg.AuthURL, AnonKey: cfg.AuthAnonKey},
			Sessions: sessions,
			Log:      log,
		},
		&httpx.OnboardingHandler{
			Service: &onboarding.Service{Store: &onboarding.Repo{DB: db}, Sessions: sessions, Log: log},
			Log:     log,
		},
	)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "lock": cfg.ReservationLock}).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // tutup inbox -> flush & close writer
	}
	for _, p := range producers {
		p.WaitClosed()
	}
}

// newReservationTx picks how reservations on one bag are serialized:
// a row lock inside one transaction, or a Redis/in-process lock around
// single statements.
func newReservationTx(cfg config.Config, db postgres.DB, rdb *redis.Client, store reservation.Store) (reservation.TxRunner, error) {
	switch cfg.ReservationLock {
	case "postgres":
		return &reservation.PGTx{DB: db}, nil
	case "redis":
		return &reservation.LockedStore{Store: store, Locker: &redisx.Locker{Redis: rdb, TTL: cfg.LockTTL}}, nil
	case "local":
		return &reservation.LockedStore{Store: store, Locker: &reservation.KeyedMutex{}}, nil
	}
	return nil, fmt.Errorf("unknown RESERVATION_LOCK %q", cfg.ReservationLock)
}
