package models

import (
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/shopspring/decimal"
)

// Типы записей учётной системы
const (
	RecordCardTier          = "card_tier"
	RecordLoyaltyCard       = "loyalty_card"
	RecordProduct           = "product"
	RecordPriceListEntry    = "price_list_entry"
	RecordProgramConfig     = "program_config"
	RecordPurchaseEntry     = "purchase_entry"
	RecordReward            = "reward"
	RecordRedemptionRequest = "redemption_request"
	RecordAuditNote         = "audit_note"
)

// Статусы карт лояльности
const (
	CardStatusActive  = "active"
	CardStatusBlocked = "blocked"
)

// CardTier - модель уровня программы лояльности
type CardTier struct {
	ID            string
	Name          string
	CardLevel     int
	MinimumPoints int
}

// LoyaltyCard - модель карты лояльности пользователя
type LoyaltyCard struct {
	ID          string
	CustomerID  string
	CardNumber  string
	TierID      string
	TotalPoints decimal.Decimal
	Status      string
	TierChecked bool
	Version     int64
}

// TierFromRecord - модель уровня из обобщённой записи
func TierFromRecord(record *records.Record) CardTier {
	return CardTier{
		ID:            record.ID,
		Name:          record.Fields.String("name"),
		CardLevel:     record.Fields.Int("card_level"),
		MinimumPoints: record.Fields.Int("minimum_points"),
	}
}

// CardFromRecord - модель карты из обобщённой записи
func CardFromRecord(record *records.Record) (*LoyaltyCard, error) {
	totalPoints, err := record.Fields.ParseDecimal("total_points")
	if err != nil {
		return nil, fmt.Errorf("failed to read card %s points: %w", record.ID, err)
	}
	return &LoyaltyCard{
		ID:          record.ID,
		CustomerID:  record.Fields.String("customer_id"),
		CardNumber:  record.Fields.String("card_number"),
		TierID:      record.Fields.String("tier_id"),
		TotalPoints: totalPoints,
		Status:      record.Fields.String("status"),
		TierChecked: record.Fields.Bool("tier_checked"),
		Version:     record.Version,
	}, nil
}
