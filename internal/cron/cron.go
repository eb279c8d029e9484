package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/interfaces"
	cron_config "github.com/h2linker/sendqueue/internal/cron/config"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

// CONSTANTS
const (
	// GroupQueue serializes jobs that send or enqueue mail
	GroupQueue = "queue"
	// GroupWarmup serializes jobs that move usage counters and limits
	GroupWarmup = "warmup"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	defaultCronMaxItems = 2
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupQueue:  new(sync.Mutex),
		GroupWarmup: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	queue    interfaces.QueueService
	radar    interfaces.RadarService
	warmup   interfaces.WarmupService
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, queue interfaces.QueueService, radar interfaces.RadarService, warmup interfaces.WarmupService) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		k8s:    k8s,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		queue:  queue,
		radar:  radar,
		warmup: warmup,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "sendqueue-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		le.Run(context.Background())
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			// Wait for jobs to finish
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}
	cm.registerJobsWithConfig(c, cronConfig)
}

func (cm *CronManager) registerJobsWithConfig(c *cronv3.Cron, cronConfig cron_config.Config) {
	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		cm.addJob(c, "heartbeat", cronConfig.CronScheduleHeartbeat, "", func() {
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
	}

	if cronConfig.CronScheduleDrainQueue != "" && cm.queue != nil {
		cm.addJob(c, "drain_queue", cronConfig.CronScheduleDrainQueue, GroupQueue, cm.drainPremiumQueues)
	}
	if cronConfig.CronScheduleRadarScan != "" && cm.radar != nil {
		cm.addJob(c, "radar_scan", cronConfig.CronScheduleRadarScan, GroupQueue, cm.scanRadars)
	}
	if cronConfig.CronScheduleResetCounters != "" && cm.warmup != nil {
		cm.addJob(c, "reset_counters", cronConfig.CronScheduleResetCounters, GroupWarmup, cm.resetDailyCounters)
	}
	if cronConfig.CronScheduleWarmupEscalation != "" && cm.warmup != nil {
		cm.addJob(c, "warmup_escalation", cronConfig.CronScheduleWarmupEscalation, GroupWarmup, cm.escalateWarmups)
	}
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule, group string, job func()) {
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		if group != "" {
			jobLocks.locks[group].Lock()
			defer jobLocks.locks[group].Unlock()
		}
		job()
	})
	if err != nil {
		cm.log.Fatalf("Could not add %s cron job: %v", name, err)
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithLocation(time.UTC),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

func (cm *CronManager) cronMaxItems() int {
	if cm.cfg != nil && cm.cfg.DrainConfig != nil && cm.cfg.DrainConfig.CronMaxItems > 0 {
		return cm.cfg.DrainConfig.CronMaxItems
	}
	return defaultCronMaxItems
}

func (cm *CronManager) drainPremiumQueues() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.drainPremiumQueues")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	summary, err := cm.queue.DrainPremium(ctx, cm.cronMaxItems())
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to drain premium queues: %v", err)
		return
	}
	cm.log.Infof("Premium drain done: %d users, %d sent, %d failed, %d paused",
		summary.UsersTouched, summary.Sent, summary.Failed, summary.Paused)
}

func (cm *CronManager) scanRadars() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.scanRadars")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if _, err := cm.radar.Scan(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to scan radars: %v", err)
	}
}

func (cm *CronManager) resetDailyCounters() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.resetDailyCounters")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	reset, err := cm.warmup.ResetDailyCounters(ctx, utils.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to reset daily counters: %v", err)
		return
	}
	cm.log.Infof("Reset daily counters for %d senders", reset)
}

func (cm *CronManager) escalateWarmups() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.escalateWarmups")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	escalated, err := cm.warmup.Escalate(ctx, utils.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to escalate warm-up limits: %v", err)
		return
	}
	cm.log.Infof("Escalated warm-up limits for %d senders", escalated)
}
