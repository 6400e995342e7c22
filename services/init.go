package services

import (
	"time"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/repository"
	"github.com/mailvault/mailvault/services/coordinator"
	"github.com/mailvault/mailvault/services/events"
	"github.com/mailvault/mailvault/services/extract"
	"github.com/mailvault/mailvault/services/imap"
	"github.com/mailvault/mailvault/services/orchestrator"
	"github.com/mailvault/mailvault/services/pipeline"
	"github.com/mailvault/mailvault/services/sync"
)

type Services struct {
	EventPublisher     interfaces.EventPublisher
	AttachmentPipeline *pipeline.Processor
	SyncEngine         interfaces.SyncEngine
	SyncCoordinator    interfaces.SyncCoordinator
	SyncOrchestrator   interfaces.SyncOrchestrator
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// events
	var publisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		rabbitPublisher, err := events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
		publisher = rabbitPublisher
	} else {
		log.Warn("RABBITMQ_URL not set, events will not be published")
		publisher = events.NewNoopPublisher()
	}

	// attachment pipeline
	registry := extract.NewRegistry(cfg.PipelineConfig, log)
	processor, err := pipeline.NewProcessor(cfg.PipelineConfig, registry, log)
	if err != nil {
		return nil, err
	}

	// lease coordination
	var syncCoordinator interfaces.SyncCoordinator
	if cfg.RedisConfig.URL != "" {
		syncCoordinator, err = coordinator.NewRedisCoordinator(cfg.RedisConfig.URL, cfg.SyncConfig.LeaseTTL(), log)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("REDIS_URL not set, using in-process sync leases")
		syncCoordinator = coordinator.NewMemoryCoordinator(cfg.SyncConfig.LeaseTTL(), log)
	}

	// sync engine and orchestrator
	dialer := imap.NewDialer(time.Duration(cfg.SyncConfig.ConnectTimeoutSeconds)*time.Second, log)
	engine := sync.NewEngine(cfg.SyncConfig, dialer, repos.CheckpointRepository, processor, publisher, log)
	syncOrchestrator := orchestrator.NewOrchestrator(cfg.SyncConfig, engine, syncCoordinator, repos.AccountRepository, log)

	services := Services{
		EventPublisher:     publisher,
		AttachmentPipeline: processor,
		SyncEngine:         engine,
		SyncCoordinator:    syncCoordinator,
		SyncOrchestrator:   syncOrchestrator,
	}

	return &services, nil
}
