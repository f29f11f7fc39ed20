package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	internalcfg "github.com/customeros/ticketstack/internal/config"
	cron_config "github.com/customeros/ticketstack/internal/cron/config"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &internalcfg.DatabaseConfig{},
		WorkerConfig:   &internalcfg.WorkerConfig{},
		StorageConfig:  &internalcfg.StorageConfig{},
		Cron:           &cron_config.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, errors.Wrap(err, "error loading ticketstack config")
	}

	return config, nil
}
