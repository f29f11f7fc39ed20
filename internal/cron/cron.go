package cron

import (
	"context"
	"os"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/ticketstack/interfaces"
	cron_config "github.com/customeros/ticketstack/internal/cron/config"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/tracing"
)

const (
	// GroupUploads serializes jobs touching the uploads directory
	GroupUploads = "uploads"

	LeaseName = "ticketstack-cron-leader"
	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupUploads: new(sync.Mutex),
	},
}

// TempSweeper removes leftovers of interrupted attachment writes.
type TempSweeper interface {
	SweepTemp(ctx context.Context, olderThan time.Duration) (int, error)
}

type CronManager struct {
	cfg      cron_config.Config
	podName  string
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	sweeper  TempSweeper
	monitor  interfaces.MonitorStatusProvider
}

// NewCronManager wires the worker's maintenance jobs. sweeper and monitor
// may be nil; their jobs are then not registered.
func NewCronManager(cfg cron_config.Config, podName string, log logger.Logger, k8s kubernetes.Interface, sweeper TempSweeper, monitor interfaces.MonitorStatusProvider) *CronManager {
	if podName == "" {
		podName = "local"
	}
	return &CronManager{
		cfg:     cfg,
		podName: podName,
		log:     log,
		k8s:     k8s,
		stopCh:  make(chan struct{}),
		jobIDs:  make(map[string]cronv3.EntryID),
		sweeper: sweeper,
		monitor: monitor,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      LeaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: cm.podName,
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
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Could not start crons as leader: %v", err)
					}
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

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-cm.stopCh
			cancel()
		}()
		le.Run(ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
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

func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		id, err := c.AddFunc(cm.cfg.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.heartbeat()
		})
		if err != nil {
			return err
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cm.cfg.CronScheduleHeartbeat)
	}

	if cm.cfg.CronScheduleSweepUploads != "" && cm.sweeper != nil {
		id, err := c.AddFunc(cm.cfg.CronScheduleSweepUploads, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupUploads].Lock()
			defer jobLocks.locks[GroupUploads].Unlock()
			cm.sweepUploads()
		})
		if err != nil {
			return err
		}
		cm.jobIDs["sweep_uploads"] = id
		cm.log.Infof("Registered uploads sweep job with schedule: %s", cm.cfg.CronScheduleSweepUploads)
	}
	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.log.Info("Starting cron manager")
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) heartbeat() {
	if cm.monitor == nil {
		cm.log.Infof("Cron heartbeat from pod: %s", cm.podName)
		return
	}
	status := cm.monitor.Status()
	cm.log.Infof("Cron heartbeat from pod: %s, monitor mode %s, running %t, restarts %d",
		cm.podName, status.Mode, status.Running, status.Restarts)
}

func (cm *CronManager) sweepUploads() int {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.sweepUploads")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	removed, err := cm.sweeper.SweepTemp(ctx, cm.cfg.SweepUploadsOlderThan)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to sweep uploads: %v", err)
	}
	if removed > 0 {
		cm.log.Infof("Removed %d stale attachment temp files", removed)
	}
	span.SetTag("removed", removed)
	return removed
}
