package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denmor86/loyalty-engine/internal/client"
	"github.com/denmor86/loyalty-engine/internal/config"
	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/denmor86/loyalty-engine/internal/network/router"
	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/denmor86/loyalty-engine/internal/storage"
	"github.com/denmor86/loyalty-engine/internal/worker"
)

// NewStore - выбор хранилища записей по конфигурации:
// Postgres, REST API хост-платформы либо память (для локальных запусков)
func NewStore(cfg config.Config) (records.Store, error) {
	switch {
	case cfg.Store.DatabaseDSN != "":
		database, err := storage.NewDatabase(cfg.Store.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := database.Initialize(); err != nil {
			return nil, err
		}
		return storage.NewRecordsStorage(database), nil
	case cfg.Store.HostAddr != "":
		return client.NewRecordClient(cfg.Store.HostAddr, cfg.Store.HostToken, cfg.Store.Timeout, &http.Client{}), nil
	default:
		logger.Warn("No store configured, using in-memory records")
		return records.NewMemory(), nil
	}
}

func Run(cfg config.Config, store records.Store) {

	router := router.NewRouter(cfg, store)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router.HandleRouter(),
	}
	// Создание и запуск воркера переоценки уровней
	worker := worker.NewTierWorker(router.Ledger, cfg.Worker.BatchSize, cfg.Worker.PollInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info(
			"Starting server config:", cfg,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("error listen server", err.Error())
		}
	}()

	<-stop
	logger.Info("Shutdown server")
	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutdown server", err.Error())
	}
	logger.Info("Server stopped")
}
