package main

import (
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/app"
	"github.com/denmor86/loyalty-engine/internal/config"
	"github.com/denmor86/loyalty-engine/internal/logger"
)

func main() {
	// загрузка конфига
	config := config.NewConfig()
	// инициализация логгера
	if err := logger.Initialize(config.Server.LogLevel); err != nil {
		panic(fmt.Sprintf("can't initialize logger: %s ", err.Error()))
	}
	defer logger.Sync()
	// выбор хранилища записей
	store, err := app.NewStore(config)
	if err != nil {
		logger.Error("can't initialize record store", err.Error())
		return
	}
	// запуск сервера и воркера
	app.Run(config, store)
}
