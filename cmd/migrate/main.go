package main

import (
	"github.com/ariefcatur/go-rescue-bags/internal/config"
	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-migrate"
	log := config.NewLogger(cfg)

	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	log.Info("schema up to date")
}
