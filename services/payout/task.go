package payout

import (
	"context"

	"github.com/hibiken/asynq"

	"sharemint-core/pkg/task"
)

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(task.PayoutSweepTask, func(ctx context.Context, t *asynq.Task) error {
		return svc.Sweep(ctx)
	})
	mux.HandleFunc(task.PayoutReconcileTask, func(ctx context.Context, t *asynq.Task) error {
		return svc.Reconcile(ctx)
	})
}
