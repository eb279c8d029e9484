package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Premium queue drain, every 5 minutes
	CronScheduleDrainQueue string `env:"CRON_SCHEDULE_DRAIN_QUEUE" envDefault:"0 */5 * * * *"`
	// Radar scan, every 15 minutes
	CronScheduleRadarScan string `env:"CRON_SCHEDULE_RADAR_SCAN" envDefault:"0 */15 * * * *"`
	// Daily usage counter reset, 00:05 UTC
	CronScheduleResetCounters string `env:"CRON_SCHEDULE_RESET_COUNTERS" envDefault:"0 5 0 * * *"`
	// Warm-up escalation, 00:15 UTC
	CronScheduleWarmupEscalation string `env:"CRON_SCHEDULE_WARMUP_ESCALATION" envDefault:"0 15 0 * * *"`
}
