package models

import (
	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/shopspring/decimal"
)

// Reward - модель вознаграждения
type Reward struct {
	ID             string
	Name           string
	PointsRequired int
}

// RedemptionRequest - модель запроса на списание баллов за вознаграждение
type RedemptionRequest struct {
	ID                 string
	RewardID           string
	CustomerID         string
	IsApproved         bool
	PointsAtRedemption decimal.Decimal
}

// RewardFromRecord - модель вознаграждения из обобщённой записи
func RewardFromRecord(record *records.Record) Reward {
	return Reward{
		ID:             record.ID,
		Name:           record.Fields.String("name"),
		PointsRequired: record.Fields.Int("points_required"),
	}
}

// RedemptionFromRecord - модель запроса на списание из обобщённой записи
func RedemptionFromRecord(record *records.Record) RedemptionRequest {
	return RedemptionRequest{
		ID:                 record.ID,
		RewardID:           record.Fields.String("reward_id"),
		CustomerID:         record.Fields.String("customer_id"),
		IsApproved:         record.Fields.Bool("is_approved"),
		PointsAtRedemption: record.Fields.Decimal("points_at_redemption"),
	}
}
