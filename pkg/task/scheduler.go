package task

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sharemint-core/pkg/config"
)

var Scheduler = fx.Module("asynq:scheduler",
	fx.Invoke(registerScheduler),
)

func registerScheduler(lc fx.Lifecycle, cfg *config.Config) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		&asynq.SchedulerOpts{
			Location: time.UTC,
		},
	)

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{every(cfg.Payout.SweepInterval), asynq.NewTask(PayoutSweepTask, nil, asynq.Queue("default"))},
		{every(cfg.Payout.ReconcileInterval), asynq.NewTask(PayoutReconcileTask, nil, asynq.Queue("critical"))},
		{every(time.Hour), asynq.NewTask(NoncePurgeTask, nil, asynq.Queue("low"))},
	}

	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, e.task); err != nil {
			zap.L().Error("[Asynq] Failed to register scheduled task",
				zap.String("task_type", e.task.Type()),
				zap.Error(err),
			)
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go scheduler.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Shutdown()
			return nil
		},
	})
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
