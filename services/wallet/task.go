package wallet

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"sharemint-core/pkg/task"
)

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(task.NoncePurgeTask, func(ctx context.Context, t *asynq.Task) error {
		purged, err := svc.PurgeExpiredNonces(ctx)
		if err != nil {
			zap.L().Error("nonce purge failed", zap.Error(err))
			return err
		}
		zap.L().Info("purged expired nonces", zap.Int64("count", purged))
		return nil
	})
}
