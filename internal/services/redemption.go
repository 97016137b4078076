package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/shopspring/decimal"
)

var ErrRedemptionIncomplete = errors.New("redemption request is missing reward or customer reference")

// RedemptionService - обработка запроса на списание баллов за вознаграждение
type RedemptionService interface {
	ProcessRedemption(ctx context.Context, requestID string) error
}

type Redemptions struct {
	Store  records.Store
	Ledger LedgerService
}

// Создание сервиса
func NewRedemptions(store records.Store, ledger LedgerService) RedemptionService {
	return &Redemptions{Store: store, Ledger: ledger}
}

// ProcessRedemption - проверка и проведение списания баллов.
// В отличие от покупок, ошибки здесь жёсткие: запрос, который нельзя
// удовлетворить, должен быть явно отклонён, а не молча пропущен.
// Успешный запрос одобряется автоматически, на него записывается
// снимок баланса до списания.
func (s *Redemptions) ProcessRedemption(ctx context.Context, requestID string) error {
	record, err := s.Store.Get(ctx, models.RecordRedemptionRequest, requestID)
	if err != nil {
		return fmt.Errorf("failed to get redemption request %s: %w", requestID, err)
	}
	request := models.RedemptionFromRecord(record)
	if request.RewardID == "" || request.CustomerID == "" {
		return ErrRedemptionIncomplete
	}

	card, err := s.Ledger.FindActiveCard(ctx, request.CustomerID)
	if err != nil {
		return err
	}
	if card == nil {
		return ErrNoActiveCard
	}

	rewardRecord, err := s.Store.Get(ctx, models.RecordReward, request.RewardID)
	if err != nil {
		return fmt.Errorf("failed to get reward %s: %w", request.RewardID, err)
	}
	reward := models.RewardFromRecord(rewardRecord)

	// списание атомарное, недостаток баллов отклоняется без изменений
	snapshot, err := s.Ledger.DeductPoints(ctx, card.ID, decimal.NewFromInt(int64(reward.PointsRequired)))
	if err != nil {
		return err
	}

	err = s.Store.Update(ctx, models.RecordRedemptionRequest, requestID, records.Fields{
		"is_approved":          true,
		"points_at_redemption": snapshot.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to update redemption request %s: %w", requestID, err)
	}

	logger.Info("Redemption approved", requestID, "reward", reward.Name)
	return nil
}
