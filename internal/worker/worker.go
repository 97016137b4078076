package worker

import (
	"context"
	"sync"
	"time"

	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/denmor86/loyalty-engine/internal/services"
	"github.com/sony/gobreaker"
)

func InitCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "record-store",
		Timeout: 30 * time.Second, // через 30 сек пробуем подключиться
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 5 подряд неудачных обращений к хранилищу
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Circuit Breaker '%s': %s → %s", name, from, to)
		},
	})
}

// TierWorker - фоновая переоценка уровней карт. Вторая фаза обработки
// покупки: леджер помечает карту tier_checked=false, воркер подбирает
// помеченные карты пачками и восстанавливает инвариант уровня.
type TierWorker struct {
	Ledger       services.LedgerService
	Breaker      *gobreaker.CircuitBreaker
	WaitGroup    sync.WaitGroup
	QuitChan     chan struct{}
	BatchSize    int
	PollInterval time.Duration
}

// NewTierWorker - конструктор воркера переоценки уровней
func NewTierWorker(ledger services.LedgerService, batchSize int, pollInterval time.Duration) *TierWorker {
	return &TierWorker{
		Ledger:       ledger,
		Breaker:      InitCircuitBreaker(),
		QuitChan:     make(chan struct{}),
		BatchSize:    batchSize,
		PollInterval: pollInterval,
	}
}

// Start - запускает воркер в фоне
func (w *TierWorker) Start(ctx context.Context) {
	w.WaitGroup.Add(1)
	go w.Run(ctx)
}

// Stop - корректно останавливает воркер
func (w *TierWorker) Stop() {
	close(w.QuitChan)
	w.WaitGroup.Wait()
}

// Run - основная рабочая логика
func (w *TierWorker) Run(ctx context.Context) {
	defer w.WaitGroup.Done()

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.QuitChan:
			logger.Info("TierWorker signal stop")
			return
		case <-ticker.C:
			w.ProcessCards(ctx)
		}
	}
}

// ProcessCards - переоценка пачки помеченных карт
func (w *TierWorker) ProcessCards(ctx context.Context) {
	if w.Breaker.State() == gobreaker.StateOpen {
		logger.Warn("%s unavailable. Waiting...", w.Breaker.Name())
		return
	}

	cardIDs, err := w.Ledger.PendingCards(ctx, w.BatchSize)
	if err != nil {
		logger.Error("error get cards for tier evaluation", err)
		return
	}

	for _, cardID := range cardIDs {
		_, err := w.Breaker.Execute(func() (interface{}, error) {
			return w.Ledger.ReevaluateTier(ctx, cardID)
		})

		if err != nil {
			logger.Error("Error card tier evaluation", err)
		}
	}
}
