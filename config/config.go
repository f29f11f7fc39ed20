package config

import (
	internalcfg "github.com/customeros/ticketstack/internal/config"
	cron_config "github.com/customeros/ticketstack/internal/cron/config"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	// SecretKey is the hex encoded key protecting credentials stored in settings.
	SecretKey string `env:"APP_SECRET_KEY,required"`
	PodName   string `env:"POD_NAME" envDefault:"local"`
	Namespace string `env:"POD_NAMESPACE" envDefault:"default"`
}

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *internalcfg.DatabaseConfig
	WorkerConfig   *internalcfg.WorkerConfig
	StorageConfig  *internalcfg.StorageConfig
	Cron           *cron_config.Config
}
