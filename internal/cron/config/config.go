package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Stale spool file sweep, every 15 minutes
	CronScheduleTempFileSweep string `env:"CRON_SCHEDULE_TEMP_FILE_SWEEP" envDefault:"0 */15 * * * *"`
}
