package services

import (
	"context"
	"fmt"
	"time"

	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/denmor86/loyalty-engine/internal/records"
)

// AuditRecorder - запись заметок о смене уровня карты
type AuditRecorder struct {
	Store records.Store
}

// Создание сервиса
func NewAuditRecorder(store records.Store) *AuditRecorder {
	return &AuditRecorder{Store: store}
}

// Record добавляет заметку о переходе карты на другой уровень.
// Запись ведётся по принципу best-effort: ошибка записи логируется
// и не откатывает саму смену уровня.
func (a *AuditRecorder) Record(ctx context.Context, cardID string, transition string, fromTier models.CardTier, toTier models.CardTier, at time.Time) {
	subject := "Loyalty Card Upgraded"
	action := "upgraded"
	if transition == TransitionDowngrade {
		subject = "Loyalty Card Downgraded"
		action = "downgraded"
	}

	_, err := a.Store.Create(ctx, models.RecordAuditNote, records.Fields{
		"card_id":    cardID,
		"subject":    subject,
		"text":       fmt.Sprintf("Card %s to: %s on %s", action, toTier.Name, at.Format("2006-01-02")),
		"from_tier":  fromTier.Name,
		"to_tier":    toTier.Name,
		"created_at": at.Format(time.RFC3339),
	})
	if err != nil {
		logger.Warn("Failed to write audit note for card", cardID, err)
	}
}
