package services

import (
	"context"
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/denmor86/loyalty-engine/internal/records"
)

// Причины мягкого пропуска покупки
const (
	SkipNoActiveCard  = "no active loyalty card"
	SkipNoCategory    = "product has no category"
	SkipNoPrice       = "no price list entry"
	SkipNonPositive   = "non-positive purchase price"
	SkipNoProgramRule = "no program configuration"
)

// PurchaseService - обработка события записи покупки
type PurchaseService interface {
	ProcessPurchase(ctx context.Context, purchaseID string) (*models.PurchaseOutcome, error)
}

type Purchases struct {
	Store    records.Store
	Prices   *PriceResolver
	Programs *ProgramConfigResolver
	Ledger   LedgerService
}

// Создание сервиса
func NewPurchases(store records.Store, prices *PriceResolver, programs *ProgramConfigResolver, ledger LedgerService) PurchaseService {
	return &Purchases{Store: store, Prices: prices, Programs: programs, Ledger: ledger}
}

// ProcessPurchase - расчёт и начисление баллов за одну покупку.
// Недостающие данные (карта, категория, цена, правило) не являются ошибкой:
// обработка мягко пропускается, баланс не меняется. Обновление баланса
// делегируется леджеру, переоценка уровня выполняется отдельным шагом
// по отметке tier_checked.
func (s *Purchases) ProcessPurchase(ctx context.Context, purchaseID string) (*models.PurchaseOutcome, error) {
	// хост может передать неполную запись, перечитываем покупку целиком
	record, err := s.Store.Get(ctx, models.RecordPurchaseEntry, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase %s: %w", purchaseID, err)
	}
	purchase, err := models.PurchaseFromRecord(record)
	if err != nil {
		return nil, err
	}

	card, err := s.Ledger.FindActiveCard(ctx, purchase.CustomerID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return skip(purchaseID, SkipNoActiveCard), nil
	}

	productRecord, err := s.Store.Get(ctx, models.RecordProduct, purchase.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", purchase.ProductID, err)
	}
	product := models.ProductFromRecord(productRecord)
	if product.CategoryID == "" {
		return skip(purchaseID, SkipNoCategory), nil
	}

	price, err := s.Prices.ResolvePrice(ctx, purchase.ProductID, purchase.CurrencyID)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return skip(purchaseID, SkipNoPrice), nil
	}
	if !price.Amount.IsPositive() {
		return skip(purchaseID, SkipNonPositive), nil
	}

	config, err := s.Programs.ResolveConfig(ctx, card.TierID, product.CategoryID, purchase.CurrencyID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return skip(purchaseID, SkipNoProgramRule), nil
	}

	points, err := CalculatePoints(price.Amount, *config)
	if err != nil {
		return nil, err
	}

	// фиксируем цену и начисленные баллы на записи покупки;
	// при неизменных цене и правиле повторная обработка перезапишет те же значения
	err = s.Store.Update(ctx, models.RecordPurchaseEntry, purchaseID, records.Fields{
		"purchase_price": price.Amount.String(),
		"points_earned":  points.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase %s: %w", purchaseID, err)
	}

	if err := s.Ledger.ApplyEarnedPoints(ctx, card.ID, points); err != nil {
		return nil, err
	}

	logger.Info("Purchase processed", purchaseID, "points earned", points.String())
	return &models.PurchaseOutcome{PointsEarned: points.String()}, nil
}

func skip(purchaseID string, reason string) *models.PurchaseOutcome {
	logger.Info("Purchase skipped", purchaseID, reason)
	return &models.PurchaseOutcome{Skipped: true, Reason: reason}
}
