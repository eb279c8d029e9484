package handlers

import (
	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/services"
)

type APIHandlers struct {
	Queue  *QueueHandler
	Warmup *WarmupHandler
	Radar  *RadarHandler
	Admin  *AdminHandler
	DNS    *DNSHandler
}

func InitHandlers(s *services.Services, drainConfig *config.DrainConfig) *APIHandlers {
	return &APIHandlers{
		Queue:  NewQueueHandler(s.QueueService, drainConfig),
		Warmup: NewWarmupHandler(s.WarmupService),
		Radar:  NewRadarHandler(s.RadarService),
		Admin:  NewAdminHandler(s.RadarService, s.WarmupService),
		DNS:    NewDNSHandler(s.DomainValidator),
	}
}
