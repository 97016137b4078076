package models

import (
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/shopspring/decimal"
)

// PurchaseEntry - модель записи о покупке
type PurchaseEntry struct {
	ID            string
	CustomerID    string
	ProductID     string
	CurrencyID    string
	PurchasePrice decimal.Decimal
	PointsEarned  decimal.Decimal
}

// PurchaseOutcome - результат обработки покупки.
// Skipped=true означает мягкий пропуск: данных недостаточно, баланс не меняется.
type PurchaseOutcome struct {
	Skipped      bool   `json:"skipped"`
	Reason       string `json:"reason,omitempty"`
	PointsEarned string `json:"points_earned,omitempty"`
}

// PurchaseFromRecord - модель покупки из обобщённой записи
func PurchaseFromRecord(record *records.Record) (*PurchaseEntry, error) {
	price, err := record.Fields.ParseDecimal("purchase_price")
	if err != nil {
		return nil, fmt.Errorf("failed to read purchase %s price: %w", record.ID, err)
	}
	points, err := record.Fields.ParseDecimal("points_earned")
	if err != nil {
		return nil, fmt.Errorf("failed to read purchase %s points: %w", record.ID, err)
	}
	return &PurchaseEntry{
		ID:            record.ID,
		CustomerID:    record.Fields.String("customer_id"),
		ProductID:     record.Fields.String("product_id"),
		CurrencyID:    record.Fields.String("currency_id"),
		PurchasePrice: price,
		PointsEarned:  points,
	}, nil
}
