package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/db"
	"sharemint-core/pkg/logger"
	"sharemint-core/pkg/redis"
	"sharemint-core/pkg/sequence"
	"sharemint-core/pkg/solana"
	"sharemint-core/pkg/task"
	"sharemint-core/services/payout"
	"sharemint-core/services/throttle"
	"sharemint-core/services/wallet"
)

// settler runs the background side of the ledger: the payout sweep, the
// settlement reconciler and nonce cleanup.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		solana.Module,
		fx.Provide(provideSnowflakeNode),
		throttle.Module,
		wallet.Module,
		wallet.Worker,
		payout.Module,
		payout.Worker,
		task.Client,
		task.Server,
		task.Scheduler,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}
