package cron

import (
	"context"
	"os"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	cron_config "github.com/mailvault/mailvault/internal/cron/config"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/tracing"
)

type CronManager struct {
	cfg     *config.Config
	log     logger.Logger
	cron    *cronv3.Cron
	stopCh  chan struct{}
	jobIDs  map[string]cronv3.EntryID
	sweeper interfaces.TempFileSweeper
}

func NewCronManager(cfg *config.Config, log logger.Logger, sweeper interfaces.TempFileSweeper) *CronManager {
	return &CronManager{
		cfg:     cfg,
		log:     log,
		stopCh:  make(chan struct{}),
		jobIDs:  make(map[string]cronv3.EntryID),
		sweeper: sweeper,
	}
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	// Load cron config from environment variables
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	// Register heartbeat job
	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	// Register stale spool file sweep
	if cronConfig.CronScheduleTempFileSweep != "" && cm.sweeper != nil {
		id, err := c.AddFunc(cronConfig.CronScheduleTempFileSweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.sweepTempFiles()
		})
		if err != nil {
			cm.log.Fatalf("Could not add temp file sweep cron job: %v", err)
		}
		cm.jobIDs["temp_file_sweep"] = id
		cm.log.Infof("Registered temp file sweep job with schedule: %s", cronConfig.CronScheduleTempFileSweep)
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

func (cm *CronManager) sweepTempFiles() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.sweepTempFiles")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	removed, err := cm.sweeper.SweepTempFiles(ctx, cm.cfg.PipelineConfig.TempFileMaxAge())
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to sweep temp files: %v", err)
		return
	}
	span.LogKV("removed", removed)
}
