package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"household-catalog/internal/config"
	"household-catalog/internal/shared"
	"household-catalog/pkg/logger"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
	jobConfig config.JobConfig
}

func NewScheduler(redisOpt asynq.RedisClientOpt, jobConfig config.JobConfig) *Scheduler {
	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{
		scheduler: scheduler,
		jobConfig: jobConfig,
	}
}

func (s *Scheduler) RegisterCatalogJobs() error {
	return s.registerReconcileJob()
}

// ================================================
// JOB: Periodic reconcile (JOB_RECONCILE_CRON)
// ================================================
// Lượt đầy đủ: flush pending → sync → repair → recalc.
// MaxRetry thấp vì lượt kế tiếp sẽ tự sửa.
func (s *Scheduler) registerReconcileJob() error {
	payload, err := json.Marshal(shared.ReconcilePayload{Reason: "scheduled"})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeCatalogReconcile, payload)

	_, err = s.scheduler.Register(
		s.jobConfig.ReconcileCron,
		task,
		asynq.Queue(shared.QueueCatalog),
		asynq.MaxRetry(1),
		asynq.Timeout(s.jobConfig.ReconcileTimeout),
		asynq.Unique(s.jobConfig.ReconcileTimeout),
	)
	if err != nil {
		logger.Error("Failed to register CatalogReconcile job", err)
		return err
	}

	logger.Info("✓ Registered CatalogReconcile", map[string]interface{}{
		"cron": s.jobConfig.ReconcileCron,
	})
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
