package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/db"
	"sharemint-core/pkg/health"
	"sharemint-core/pkg/logger"
	"sharemint-core/pkg/redis"
	"sharemint-core/pkg/sequence"
	"sharemint-core/pkg/server"
	"sharemint-core/pkg/solana"
	"sharemint-core/services/campaign"
	"sharemint-core/services/payout"
	"sharemint-core/services/premium"
	"sharemint-core/services/throttle"
	"sharemint-core/services/wallet"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		solana.Module,
		fx.Provide(provideSnowflakeNode),
		fx.Invoke(db.Otel, db.Metric),
		fx.Invoke(autoMigrate),
		throttle.Module,
		wallet.Module,
		wallet.Gateway,
		campaign.Module,
		campaign.Gateway,
		payout.Module,
		payout.Gateway,
		premium.Module,
		premium.Gateway,
		health.Module,
		server.ProvideHTTPServer,
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
	return snowflake.NewNode(1)
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&campaign.Campaign{},
		&campaign.ClaimEntry{},
		&wallet.WalletBinding{},
		&wallet.ReplayNonce{},
		&throttle.AttemptRecord{},
		&payout.Settlement{},
		&premium.PremiumAsset{},
		&premium.PurchaseRecord{},
	)
}
