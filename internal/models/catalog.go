package models

import (
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/shopspring/decimal"
)

// Product - модель товара, CategoryID может быть пустым (товар без категории)
type Product struct {
	ID         string
	Name       string
	CategoryID string
}

// PriceListEntry - модель строки прайс-листа (товар, валюта) → цена
type PriceListEntry struct {
	ID         string
	ProductID  string
	CurrencyID string
	Amount     decimal.Decimal
}

// ProgramConfig - правило начисления баллов для (уровень, категория, валюта)
type ProgramConfig struct {
	ID             string
	TierID         string
	CategoryID     string
	CurrencyID     string
	MinSpendAmount int
	PointsPerUnit  decimal.Decimal
}

// ProductFromRecord - модель товара из обобщённой записи
func ProductFromRecord(record *records.Record) Product {
	return Product{
		ID:         record.ID,
		Name:       record.Fields.String("name"),
		CategoryID: record.Fields.String("category_id"),
	}
}

// PriceFromRecord - модель строки прайс-листа из обобщённой записи
func PriceFromRecord(record *records.Record) (*PriceListEntry, error) {
	amount, err := record.Fields.ParseDecimal("amount")
	if err != nil {
		return nil, fmt.Errorf("failed to read price entry %s: %w", record.ID, err)
	}
	return &PriceListEntry{
		ID:         record.ID,
		ProductID:  record.Fields.String("product_id"),
		CurrencyID: record.Fields.String("currency_id"),
		Amount:     amount,
	}, nil
}

// ConfigFromRecord - модель правила начисления из обобщённой записи
func ConfigFromRecord(record *records.Record) (*ProgramConfig, error) {
	pointsPerUnit, err := record.Fields.ParseDecimal("points_per_unit")
	if err != nil {
		return nil, fmt.Errorf("failed to read program config %s: %w", record.ID, err)
	}
	return &ProgramConfig{
		ID:             record.ID,
		TierID:         record.Fields.String("tier_id"),
		CategoryID:     record.Fields.String("category_id"),
		CurrencyID:     record.Fields.String("currency_id"),
		MinSpendAmount: record.Fields.Int("min_spend_amount"),
		PointsPerUnit:  pointsPerUnit,
	}, nil
}
