package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

var (
	ErrNoActiveCard        = errors.New("no active loyalty card found for the customer")
	ErrInsufficientPoints  = errors.New("not enough points to redeem this reward")
	ErrNegativeDelta       = errors.New("earned points delta must not be negative")
	ErrInvalidDeductAmount = errors.New("deduct amount must be positive")
	ErrUpdateConflict      = errors.New("card update conflict: retries exhausted")
)

// LedgerService - единственный владелец баланса и уровня карты лояльности.
// Все изменения total_points и tier_id проходят только через него.
type LedgerService interface {
	FindActiveCard(ctx context.Context, customerID string) (*models.LoyaltyCard, error)
	ApplyEarnedPoints(ctx context.Context, cardID string, delta decimal.Decimal) error
	DeductPoints(ctx context.Context, cardID string, amount decimal.Decimal) (decimal.Decimal, error)
	ReevaluateTier(ctx context.Context, cardID string) (string, error)
	PendingCards(ctx context.Context, limit int) ([]string, error)
}

type Ledger struct {
	Store        records.Store
	Audit        *AuditRecorder
	RetryCount   uint64
	RetryBackoff time.Duration
}

// Создание сервиса
func NewLedger(store records.Store, audit *AuditRecorder, retryCount uint64, retryBackoff time.Duration) LedgerService {
	return &Ledger{Store: store, Audit: audit, RetryCount: retryCount, RetryBackoff: retryBackoff}
}

// FindActiveCard возвращает активную карту пользователя.
// Отсутствие карты — не ошибка (nil, nil), решение принимает вызывающий.
func (l *Ledger) FindActiveCard(ctx context.Context, customerID string) (*models.LoyaltyCard, error) {
	found, err := l.Store.Query(ctx, models.RecordLoyaltyCard,
		records.Filters{"customer_id": customerID, "status": models.CardStatusActive},
		records.Order{Field: "created_at", Desc: true}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to query loyalty cards: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return models.CardFromRecord(&found[0])
}

// ApplyEarnedPoints - атомарное начисление баллов на карту.
// Чтение-изменение-запись защищено версией записи: конфликт записи
// повторяется с постоянной паузой, исчерпание попыток — ErrUpdateConflict.
// Карта помечается tier_checked=false для отложенной переоценки уровня.
func (l *Ledger) ApplyEarnedPoints(ctx context.Context, cardID string, delta decimal.Decimal) error {
	if delta.IsNegative() {
		return ErrNegativeDelta
	}

	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		card, err := l.getCard(ctx, cardID)
		if err != nil {
			return err
		}
		updated := card.TotalPoints.Add(delta)
		err = l.Store.UpdateIf(ctx, models.RecordLoyaltyCard, cardID, records.Fields{
			"total_points": updated.String(),
			"tier_checked": false,
		}, card.Version)
		if errors.Is(err, records.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	return l.wrapConflict(err, "apply earned points")
}

// DeductPoints - атомарное списание баллов с карты.
// Возвращает баланс до списания (снимок для запроса на вознаграждение).
// Списание сверх баланса отклоняется, баланс не может стать отрицательным.
func (l *Ledger) DeductPoints(ctx context.Context, cardID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidDeductAmount
	}

	var snapshot decimal.Decimal
	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		card, err := l.getCard(ctx, cardID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(card.TotalPoints) {
			return ErrInsufficientPoints
		}
		snapshot = card.TotalPoints
		err = l.Store.UpdateIf(ctx, models.RecordLoyaltyCard, cardID, records.Fields{
			"total_points": card.TotalPoints.Sub(amount).String(),
			"tier_checked": false,
		}, card.Version)
		if errors.Is(err, records.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return decimal.Zero, l.wrapConflict(err, "deduct points")
	}
	return snapshot, nil
}

// ReevaluateTier восстанавливает инвариант карты: уровень — наивысший,
// чей порог не превышает баланс. Возвращает классификацию перехода.
// При смене уровня пишется аудит-заметка (best-effort).
func (l *Ledger) ReevaluateTier(ctx context.Context, cardID string) (string, error) {
	transition := TransitionUnchanged

	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		card, err := l.getCard(ctx, cardID)
		if err != nil {
			return err
		}
		// карта без уровня не оценивается, но отметку проверки ставим,
		// иначе карта навсегда остаётся в очереди воркера
		if card.TierID == "" {
			transition = TransitionUnchanged
			if card.TierChecked {
				return nil
			}
			err = l.Store.UpdateIf(ctx, models.RecordLoyaltyCard, cardID,
				records.Fields{"tier_checked": true}, card.Version)
			if errors.Is(err, records.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}

		tiers, current, err := l.loadTiers(ctx, card.TierID)
		if err != nil {
			return err
		}

		evaluation, err := EvaluateTier(current, card.TotalPoints, tiers)
		if err != nil {
			return err
		}
		transition = evaluation.Transition

		// баланс не менялся и переоценка не требуется — записей нет
		if transition == TransitionUnchanged && card.TierChecked {
			return nil
		}

		fields := records.Fields{"tier_checked": true}
		if transition != TransitionUnchanged {
			fields["tier_id"] = evaluation.Tier.ID
		}
		err = l.Store.UpdateIf(ctx, models.RecordLoyaltyCard, cardID, fields, card.Version)
		if errors.Is(err, records.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}

		if transition != TransitionUnchanged {
			logger.Info("Card tier changed", cardID, current.Name, "->", evaluation.Tier.Name)
			l.Audit.Record(ctx, cardID, transition, current, evaluation.Tier, time.Now())
		}
		return nil
	})
	if err != nil {
		return TransitionUnchanged, l.wrapConflict(err, "reevaluate tier")
	}
	return transition, nil
}

// PendingCards возвращает карты, ожидающие переоценки уровня после изменения баланса
func (l *Ledger) PendingCards(ctx context.Context, limit int) ([]string, error) {
	found, err := l.Store.Query(ctx, models.RecordLoyaltyCard,
		records.Filters{"tier_checked": false, "status": models.CardStatusActive},
		records.Order{Field: "created_at"}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending cards: %w", err)
	}
	ids := make([]string, 0, len(found))
	for _, record := range found {
		ids = append(ids, record.ID)
	}
	return ids, nil
}

func (l *Ledger) getCard(ctx context.Context, cardID string) (*models.LoyaltyCard, error) {
	record, err := l.Store.Get(ctx, models.RecordLoyaltyCard, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get loyalty card %s: %w", cardID, err)
	}
	return models.CardFromRecord(record)
}

// loadTiers - загрузка полного набора уровней и текущего уровня карты
func (l *Ledger) loadTiers(ctx context.Context, currentTierID string) ([]models.CardTier, models.CardTier, error) {
	found, err := l.Store.Query(ctx, models.RecordCardTier, nil, records.Order{Field: "card_level"}, 0)
	if err != nil {
		return nil, models.CardTier{}, fmt.Errorf("failed to query card tiers: %w", err)
	}

	tiers := make([]models.CardTier, 0, len(found))
	var current *models.CardTier
	for i := range found {
		tier := models.TierFromRecord(&found[i])
		tiers = append(tiers, tier)
		if tier.ID == currentTierID {
			current = &tier
		}
	}
	if current == nil {
		// текущий уровень мог быть исключён из набора, читаем его отдельно
		record, err := l.Store.Get(ctx, models.RecordCardTier, currentTierID)
		if err != nil {
			return nil, models.CardTier{}, fmt.Errorf("failed to get current tier %s: %w", currentTierID, err)
		}
		tier := models.TierFromRecord(record)
		current = &tier
	}
	return tiers, *current, nil
}

func (l *Ledger) backoff() retry.Backoff {
	return retry.WithMaxRetries(l.RetryCount, retry.NewConstant(l.RetryBackoff))
}

func (l *Ledger) wrapConflict(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, records.ErrVersionConflict) {
		return fmt.Errorf("%s: %w", operation, ErrUpdateConflict)
	}
	return err
}
