package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
	"github.com/spf13/pflag"
)

type Arguments struct {
	ListenAddr   string        `env:"SERVER_ADDRESS" envDefault:"localhost:8080"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseDSN  string        `env:"DATABASE_DSN" envDefault:""`
	HostAddr     string        `env:"HOST_API_ADDRESS" envDefault:""`
	HostToken    string        `env:"HOST_API_TOKEN" envDefault:""`
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"secret"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	RetryCount   uint64        `env:"LEDGER_RETRY_COUNT" envDefault:"3"`
	RetryBackoff time.Duration `env:"LEDGER_RETRY_BACKOFF" envDefault:"50ms"`
	BatchSize    int           `env:"WORKER_BATCH_SIZE" envDefault:"10"`
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
}

// ServerConfig модель настроек сервера
type ServerConfig struct {
	ListenAddr string
	LogLevel   string
	JWTSecret  string
}

// StoreConfig модель настроек доступа к записям учётной системы.
// Задан DatabaseDSN — используется Postgres, задан HostAddr — REST API хоста,
// иначе хранилище в памяти.
type StoreConfig struct {
	DatabaseDSN string
	HostAddr    string
	HostToken   string
	Timeout     time.Duration
}

// LedgerConfig модель настроек повторов при конфликте записи баланса
type LedgerConfig struct {
	RetryCount   uint64
	RetryBackoff time.Duration
}

// WorkerConfig модель настроек воркера переоценки уровней
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// Config модель настроек сервиса
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Ledger LedgerConfig
	Worker WorkerConfig
}

func NewConfig() Config {

	var args Arguments
	if err := env.Parse(&args); err != nil {
		panic(fmt.Sprintf("Failed to parse enviroment var: %s", err.Error()))
	}

	var (
		server    = pflag.StringP("server", "a", args.ListenAddr, "Server listen address in a form host:port.")
		logLevel  = pflag.StringP("log_level", "l", args.LogLevel, "Log level.")
		DSN       = pflag.StringP("dsn", "d", args.DatabaseDSN, "Database DSN")
		hostAddr  = pflag.StringP("host", "r", args.HostAddr, "Host platform record API address.")
		hostToken = pflag.StringP("host_token", "t", args.HostToken, "Host platform record API token.")
		secret    = pflag.StringP("secret", "s", args.JWTSecret, "Secret to JWT")
	)
	pflag.Parse()

	return Config{
		Server: ServerConfig{
			ListenAddr: *server,
			LogLevel:   *logLevel,
			JWTSecret:  *secret,
		},
		Store: StoreConfig{
			DatabaseDSN: *DSN,
			HostAddr:    *hostAddr,
			HostToken:   *hostToken,
			Timeout:     args.StoreTimeout,
		},
		Ledger: LedgerConfig{
			RetryCount:   args.RetryCount,
			RetryBackoff: args.RetryBackoff,
		},
		Worker: WorkerConfig{
			BatchSize:    args.BatchSize,
			PollInterval: args.PollInterval,
		},
	}
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: "localhost:8080",
			LogLevel:   "info",
			JWTSecret:  "secret",
		},
		Store: StoreConfig{
			Timeout: 5 * time.Second,
		},
		Ledger: LedgerConfig{
			RetryCount:   3,
			RetryBackoff: 50 * time.Millisecond,
		},
		Worker: WorkerConfig{
			BatchSize:    10,
			PollInterval: 5 * time.Second,
		},
	}
}
