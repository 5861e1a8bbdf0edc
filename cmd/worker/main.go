package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/config"
	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	"github.com/ariefcatur/go-rescue-bags/internal/inventory"
	kafkax "github.com/ariefcatur/go-rescue-bags/internal/kafka"
	"github.com/ariefcatur/go-rescue-bags/internal/location"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
	"github.com/ariefcatur/go-rescue-bags/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	listAnomalies := flag.Bool("list-anomalies", false, "print unresolved reservation anomalies as JSON and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-worker"
	log := config.NewLogger(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	anomalies := &inventory.AnomalyRepo{DB: db}
	if *listAnomalies {
		list, err := anomalies.ListOpen(ctx)
		if err != nil {
			log.WithError(err).Fatal("list anomalies")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(list)
		return
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	inv := &inventory.Service{Repo: anomalies, Redis: rdb, Log: log, ServiceName: cfg.ServiceName}
	sync := &location.Sync{Store: &identity.Repo{DB: db}, Redis: rdb, Log: log}
	mux := kafkax.Mux{
		orders.TopicReservationPartial:      inv.HandlePartial,
		orders.TopicCustomerLocationUpdated: sync.HandleLocationUpdated,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, mux.Topics(), cfg.WorkerConcurrency, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.WithFields(logrus.Fields{
			"group":   cfg.WorkerGroup,
			"topics":  mux.Topics(),
			"workers": cfg.WorkerConcurrency,
		}).Info("worker consumer started")
		if err := cons.Start(ctx, mux.Handle); err != nil {
			log.WithError(err).Error("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("consumer did not stop in time")
	}
}
