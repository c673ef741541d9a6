package config

import (
	"flag"
	"log"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

var Config struct {
	RunAddress  string `env:"RUN_ADDRESS" envDefault:":8080"`
	DatabaseURI string `env:"DATABASE_URI"`
	SecretToken string `env:"TOKEN" envDefault:"secret"`

	SyncInterval      time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
	SyncBatchSize     int           `env:"SYNC_BATCH_SIZE" envDefault:"100"`
	UserSyncBudget    time.Duration `env:"USER_SYNC_BUDGET" envDefault:"25s"`
	UserSyncMaxOrders int           `env:"USER_SYNC_MAX_ORDERS" envDefault:"100"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	if err := env.Parse(&Config); err != nil {
		log.Fatalf("It's not possible to initialise environment variables, error: %v", err)
	}
}

// MustLoad applies command-line overrides on top of the environment and
// fails fast on an unusable configuration. Only main calls it; packages
// linking config in tests get the env-derived values without flag parsing.
func MustLoad() {
	flag.StringVar(&Config.RunAddress, "a", Config.RunAddress, "Address and port of service.")
	flag.StringVar(&Config.DatabaseURI, "d", Config.DatabaseURI, "DSN of PG database.")
	flag.DurationVar(&Config.SyncInterval, "i", Config.SyncInterval, "Interval between scheduled provider syncs.")
	flag.IntVar(&Config.SyncBatchSize, "b", Config.SyncBatchSize, "Max orders checked per sync run.")
	flag.Parse()

	if Config.DatabaseURI == "" {
		log.Fatal("Database DSN not set! Use -d flag or DATABASE_URI. Check --help flag.")
	}
}
