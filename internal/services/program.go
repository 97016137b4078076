package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidProgramConfig = errors.New("invalid program configuration: min spend amount must be positive")
	ErrNonPositivePrice     = errors.New("purchase price must be positive")
)

// ProgramConfigResolver - поиск действующего правила начисления баллов
type ProgramConfigResolver struct {
	Store records.Store
}

// Создание сервиса
func NewProgramConfigResolver(store records.Store) *ProgramConfigResolver {
	return &ProgramConfigResolver{Store: store}
}

// ResolveConfig возвращает правило начисления для тройки (уровень, категория, валюта).
// Совпадение только точное, без частичных ключей и правил "по умолчанию".
// Отсутствие правила — штатный исход (nil, nil), баллы не начисляются.
func (r *ProgramConfigResolver) ResolveConfig(ctx context.Context, tierID string, categoryID string, currencyID string) (*models.ProgramConfig, error) {
	found, err := r.Store.Query(ctx, models.RecordProgramConfig,
		records.Filters{"tier_id": tierID, "category_id": categoryID, "currency_id": currencyID},
		records.Order{Field: "created_at", Desc: true}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to query program configurations: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return models.ConfigFromRecord(&found[0])
}

// CalculatePoints - расчёт начисляемых баллов по правилу:
// points = (price / minSpendAmount) * pointsPerUnit.
// Деление десятичное, промежуточный результат не округляется
// (точность деления — стандартные 16 знаков shopspring/decimal),
// итог сохраняется как есть.
func CalculatePoints(price decimal.Decimal, config models.ProgramConfig) (decimal.Decimal, error) {
	if config.MinSpendAmount <= 0 {
		return decimal.Zero, ErrInvalidProgramConfig
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrNonPositivePrice
	}
	minSpend := decimal.NewFromInt(int64(config.MinSpendAmount))
	return price.Div(minSpend).Mul(config.PointsPerUnit), nil
}
