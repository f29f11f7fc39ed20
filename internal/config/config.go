package config

import "time"

type DatabaseConfig struct {
	Host            string `env:"TICKETSTACK_POSTGRES_HOST,required"`
	Port            string `env:"TICKETSTACK_POSTGRES_PORT,required"`
	User            string `env:"TICKETSTACK_POSTGRES_USER,required"`
	DBName          string `env:"TICKETSTACK_POSTGRES_DB_NAME,required"`
	Password        string `env:"TICKETSTACK_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"TICKETSTACK_POSTGRES_DB_MAX_CONN" envDefault:"20"`
	MaxIdleConn     int    `env:"TICKETSTACK_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"5"`
	ConnMaxLifetime int    `env:"TICKETSTACK_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"TICKETSTACK_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"TICKETSTACK_POSTGRES_SSL_MODE" envDefault:"require"`
}

// WorkerConfig drives the inbound mail monitor.
type WorkerConfig struct {
	Mailbox             string        `env:"WORKER_MAILBOX" envDefault:"INBOX"`
	UploadsRoot         string        `env:"WORKER_UPLOADS_ROOT" envDefault:"uploads/tickets"`
	MaxIdleRetries      int           `env:"WORKER_MAX_IDLE_RETRIES" envDefault:"5"`
	IdleBackoffBase     time.Duration `env:"WORKER_IDLE_BACKOFF_BASE" envDefault:"5s"`
	IdleBackoffMax      time.Duration `env:"WORKER_IDLE_BACKOFF_MAX" envDefault:"5m"`
	PollInterval        time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"60s"`
	RespawnDelay        time.Duration `env:"WORKER_RESPAWN_DELAY" envDefault:"10s"`
	VerifyTimeout       time.Duration `env:"WORKER_VERIFY_TIMEOUT" envDefault:"15s"`
	TicketNumberWidth   int           `env:"WORKER_TICKET_NUMBER_WIDTH" envDefault:"5"`
	DefaultTicketPrefix string        `env:"WORKER_DEFAULT_TICKET_PREFIX" envDefault:"TKT-"`
}

type StorageConfig struct {
	Backend         string `env:"ATTACHMENT_STORAGE" envDefault:"local"`
	S3Region        string `env:"ATTACHMENT_S3_REGION" envDefault:"us-east-1"`
	R2AccountID     string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"ATTACHMENT_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ATTACHMENT_ACCESS_KEY_SECRET"`
	Bucket          string `env:"ATTACHMENT_BUCKET" envDefault:"ticket-attachments"`
}
