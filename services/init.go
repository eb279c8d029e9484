package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/metrics"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/services/ai"
	"github.com/h2linker/sendqueue/services/dns"
	"github.com/h2linker/sendqueue/services/events"
	"github.com/h2linker/sendqueue/services/queue"
	"github.com/h2linker/sendqueue/services/radar"
	"github.com/h2linker/sendqueue/services/smtp"
	"github.com/h2linker/sendqueue/services/template"
	"github.com/h2linker/sendqueue/services/warmup"
)

type Services struct {
	Registry        *prometheus.Registry
	Metrics         *metrics.Metrics
	EventsService   *events.EventsService
	RedisClient     *redis.Client
	DomainValidator dns.Validator
	BodyGenerator   interfaces.BodyGenerator
	Composer        interfaces.Composer
	Transport       interfaces.Transport
	WarmupService   interfaces.WarmupService
	QueueService    interfaces.QueueService
	DrainDispatcher interfaces.DrainDispatcher
	RadarService    interfaces.RadarService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	// events are optional, drains run in process without a broker
	var eventsService *events.EventsService
	if cfg.AppConfig.RabbitMQURL != "" {
		var err error
		eventsService, err = events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig(), nil)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("RABBITMQ_URL not set, drain requests run in process")
	}

	locker, redisClient := queue.NewLocker(cfg.RedisConfig, log)
	validator := dns.NewValidator(cfg.DNSConfig, log)
	bodyGenerator := ai.NewBodyGenerator(cfg.AIConfig, log)
	composer := template.NewComposer(log, bodyGenerator, cfg.AppConfig.TrackingPublicUrl)
	transport := smtp.NewTransport(log)
	warmupService := warmup.NewWarmupService(log, repos)

	queueService := queue.NewQueueService(log, queue.Dependencies{
		Repositories: repos,
		Warmup:       warmupService,
		Composer:     composer,
		Transport:    transport,
		Validator:    validator,
		Locker:       locker,
		Metrics:      m,
		Config:       cfg.DrainConfig,
	})

	var dispatcher interfaces.DrainDispatcher
	if eventsService != nil {
		dispatcher = events.NewDrainDispatcher(log, eventsService.Publisher, queueService)
	} else {
		dispatcher = events.NewDrainDispatcher(log, nil, queueService)
	}

	radarService := radar.NewRadarService(log, repos, warmupService, dispatcher, m, cfg.RadarConfig)

	return &Services{
		Registry:        registry,
		Metrics:         m,
		EventsService:   eventsService,
		RedisClient:     redisClient,
		DomainValidator: validator,
		BodyGenerator:   bodyGenerator,
		Composer:        composer,
		Transport:       transport,
		WarmupService:   warmupService,
		QueueService:    queueService,
		DrainDispatcher: dispatcher,
		RadarService:    radarService,
	}, nil
}

func (s *Services) Close(log logger.Logger) {
	if s.EventsService != nil {
		if err := s.EventsService.Close(); err != nil {
			log.Errorf("Error closing events service: %v", err)
		}
	}
	if s.RedisClient != nil {
		if err := s.RedisClient.Close(); err != nil {
			log.Errorf("Error closing redis client: %v", err)
		}
	}
	if s.DomainValidator != nil {
		s.DomainValidator.Stop()
	}
}
