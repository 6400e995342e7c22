package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/internal/logger"
)

type mockSweeper struct {
	calls int32
}

func (m *mockSweeper) SweepTempFiles(ctx context.Context, maxAge time.Duration) (int, error) {
	atomic.AddInt32(&m.calls, 1)
	return 0, nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func getConfig() *config.Config {
	return &config.Config{
		AppConfig: &config.AppConfig{},
		Logger: &logger.Config{
			LogLevel: "info",
		},
		PipelineConfig: &config.PipelineConfig{
			TempFileMaxAgeSeconds: 3600,
		},
	}
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	cfg := getConfig()
	log := getLogger()
	sweeper := &mockSweeper{}

	// Act
	cm := NewCronManager(cfg, log, sweeper)

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_StartCron(t *testing.T) {
	// Arrange
	cm := NewCronManager(getConfig(), getLogger(), &mockSweeper{})

	// Act
	cm.StartCron()
	defer cm.Stop()

	// Assert - both default jobs registered
	assert.NotNil(t, cm.cron)
	assert.Equal(t, 2, len(cm.jobIDs))
	assert.Contains(t, cm.jobIDs, "heartbeat")
	assert.Contains(t, cm.jobIDs, "temp_file_sweep")
}

func TestCronManager_StartCronWithoutSweeper(t *testing.T) {
	// Arrange
	cm := NewCronManager(getConfig(), getLogger(), nil)

	// Act
	cm.StartCron()
	defer cm.Stop()

	// Assert - the sweep job is not registered without a sweeper
	assert.Equal(t, 1, len(cm.jobIDs))
	assert.Contains(t, cm.jobIDs, "heartbeat")
}

func TestCronManager_SweepJob(t *testing.T) {
	// Arrange
	sweeper := &mockSweeper{}
	cm := NewCronManager(getConfig(), getLogger(), sweeper)

	// Act - run the sweep directly
	cm.sweepTempFiles()

	// Assert
	assert.Equal(t, int32(1), atomic.LoadInt32(&sweeper.calls))
}

func TestCronManager_Stop(t *testing.T) {
	// Arrange
	cm := NewCronManager(getConfig(), getLogger(), &mockSweeper{})

	// Create a mock cron for testing
	mockCron := cronv3.New()
	mockCron.Start()
	cm.cron = mockCron

	// Act
	cm.Stop()

	// Assert
	select {
	case <-cm.stopCh:
		// Channel is closed as expected
	default:
		t.Error("Stop channel was not closed")
	}
}
