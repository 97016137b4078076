package services

import (
	"context"
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/denmor86/loyalty-engine/internal/records"
)

// PriceResolver - поиск цены товара в прайс-листе
type PriceResolver struct {
	Store records.Store
}

// Создание сервиса
func NewPriceResolver(store records.Store) *PriceResolver {
	return &PriceResolver{Store: store}
}

// ResolvePrice возвращает строку прайс-листа для пары (товар, валюта).
// Отсутствие цены — штатный исход (nil, nil), покупка баллов не приносит.
// При дублях побеждает последняя созданная запись.
func (r *PriceResolver) ResolvePrice(ctx context.Context, productID string, currencyID string) (*models.PriceListEntry, error) {
	found, err := r.Store.Query(ctx, models.RecordPriceListEntry,
		records.Filters{"product_id": productID, "currency_id": currencyID},
		records.Order{Field: "created_at", Desc: true}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to query price list: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return models.PriceFromRecord(&found[0])
}
