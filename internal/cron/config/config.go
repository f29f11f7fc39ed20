package cron_config

import "time"

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Interrupted attachment writes, every 15 minutes
	CronScheduleSweepUploads string `env:"CRON_SCHEDULE_SWEEP_UPLOADS" envDefault:"0 */15 * * * *"`
	// Temp files younger than this may still be in flight
	SweepUploadsOlderThan time.Duration `env:"CRON_SWEEP_UPLOADS_OLDER_THAN" envDefault:"1h"`
}
