package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Session struct {
		Secret string        `mapstructure:"SECRET"`
		TTL    time.Duration `mapstructure:"TTL"`
	} `mapstructure:"SESSION"`
	Chain struct {
		RPCURL          string        `mapstructure:"RPC_URL"`
		Commitment      string        `mapstructure:"COMMITMENT"`
		SubmitTimeout   time.Duration `mapstructure:"SUBMIT_TIMEOUT"`
		ConfirmTimeout  time.Duration `mapstructure:"CONFIRM_TIMEOUT"`
		ConfirmInterval time.Duration `mapstructure:"CONFIRM_INTERVAL"`
	} `mapstructure:"CHAIN"`
	Escrow struct {
		// Base58-encoded ed25519 secret. Supplied via SHAREMINT_ESCROW_SECRET_KEY
		// only; never written to the config file.
		SecretKey string `mapstructure:"SECRET_KEY"`
	} `mapstructure:"ESCROW"`
	Challenge struct {
		Purpose         string        `mapstructure:"PURPOSE"`
		FreshnessWindow time.Duration `mapstructure:"FRESHNESS_WINDOW"`
		NonceMargin     time.Duration `mapstructure:"NONCE_MARGIN"`
		NonceStore      string        `mapstructure:"NONCE_STORE"`
	} `mapstructure:"CHALLENGE"`
	Throttle struct {
		MaxAttempts     int           `mapstructure:"MAX_ATTEMPTS"`
		LockoutDuration time.Duration `mapstructure:"LOCKOUT_DURATION"`
		Store           string        `mapstructure:"STORE"`
	} `mapstructure:"THROTTLE"`
	Payout struct {
		SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
		ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	} `mapstructure:"PAYOUT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvPrefix("SHAREMINT")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "sharemint-core"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Chain.Commitment == "" {
		cfg.Chain.Commitment = "confirmed"
	}
	if cfg.Chain.SubmitTimeout == 0 {
		cfg.Chain.SubmitTimeout = 20 * time.Second
	}
	if cfg.Chain.ConfirmTimeout == 0 {
		cfg.Chain.ConfirmTimeout = 90 * time.Second
	}
	if cfg.Chain.ConfirmInterval == 0 {
		cfg.Chain.ConfirmInterval = 2 * time.Second
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Challenge.Purpose == "" {
		cfg.Challenge.Purpose = "sharemint-wallet-verification"
	}
	if cfg.Challenge.FreshnessWindow == 0 {
		cfg.Challenge.FreshnessWindow = 5 * time.Minute
	}
	if cfg.Challenge.NonceMargin == 0 {
		cfg.Challenge.NonceMargin = time.Minute
	}
	if cfg.Challenge.NonceStore == "" {
		cfg.Challenge.NonceStore = "db"
	}
	if cfg.Throttle.Store == "" {
		cfg.Throttle.Store = "db"
	}
	if cfg.Throttle.MaxAttempts == 0 {
		cfg.Throttle.MaxAttempts = 5
	}
	if cfg.Throttle.LockoutDuration == 0 {
		cfg.Throttle.LockoutDuration = 15 * time.Minute
	}
	if cfg.Payout.SweepInterval == 0 {
		cfg.Payout.SweepInterval = 10 * time.Minute
	}
	if cfg.Payout.ReconcileInterval == 0 {
		cfg.Payout.ReconcileInterval = 5 * time.Minute
	}
}
