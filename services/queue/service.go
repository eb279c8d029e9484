package queue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/metrics"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/utils"
)

type Dependencies struct {
	Repositories *repository.Repositories
	Warmup       interfaces.WarmupService
	Composer     interfaces.Composer
	Transport    interfaces.Transport
	Validator    interfaces.DomainValidator
	Locker       interfaces.Locker
	Metrics      *metrics.Metrics
	Sleeper      Sleeper
	Config       *config.DrainConfig
}

type queueService struct {
	log          logger.Logger
	repositories *repository.Repositories
	warmup       interfaces.WarmupService
	composer     interfaces.Composer
	transport    interfaces.Transport
	validator    interfaces.DomainValidator
	locker       interfaces.Locker
	metrics      *metrics.Metrics
	sleeper      Sleeper
	cfg          *config.DrainConfig
	now          func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewQueueService(log logger.Logger, deps Dependencies) interfaces.QueueService {
	return newQueueService(log, deps)
}

func newQueueService(log logger.Logger, deps Dependencies) *queueService {
	s := &queueService{
		log:          log,
		repositories: deps.Repositories,
		warmup:       deps.Warmup,
		composer:     deps.Composer,
		transport:    deps.Transport,
		validator:    deps.Validator,
		locker:       deps.Locker,
		metrics:      deps.Metrics,
		sleeper:      deps.Sleeper,
		cfg:          deps.Config,
		now:          utils.Now,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.sleeper == nil {
		s.sleeper = contextSleeper{}
	}
	if s.cfg == nil {
		s.cfg = &config.DrainConfig{
			CircuitBreakerThreshold: 1,
			CronMaxItems:            2,
			UserMaxItems:            5,
			MaxQueueIds:             50,
			Concurrency:             8,
			SendWindowStartHour:     8,
			SendWindowEndHour:       19,
		}
	}
	return s
}

func (s *queueService) breakerThreshold() int {
	if s.cfg.CircuitBreakerThreshold <= 0 {
		return 1
	}
	return s.cfg.CircuitBreakerThreshold
}
