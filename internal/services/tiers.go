package services

import (
	"errors"
	"sort"

	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/shopspring/decimal"
)

var ErrInvalidTierSet = errors.New("invalid tier set: levels must be unique and thresholds monotonic")

// Классификация перехода между уровнями
const (
	TransitionUnchanged = "UNCHANGED"
	TransitionUpgrade   = "UPGRADE"
	TransitionDowngrade = "DOWNGRADE"
)

// TierEvaluation - результат оценки уровня карты
type TierEvaluation struct {
	Tier       models.CardTier
	Transition string
}

// EvaluateTier определяет уровень, положенный карте при текущем балансе:
// уровни обходятся по возрастанию card_level, выбирается последний,
// чей порог не превышает баланс. Если баланс ниже всех порогов,
// текущий уровень сохраняется. Наборы уровней с повторяющимися card_level
// или с убывающими порогами отклоняются как некорректная конфигурация.
func EvaluateTier(current models.CardTier, totalPoints decimal.Decimal, tiers []models.CardTier) (TierEvaluation, error) {
	sorted := make([]models.CardTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CardLevel < sorted[j].CardLevel })

	// проверяем монотонность порогов по уровням
	for i := 1; i < len(sorted); i++ {
		if sorted[i].CardLevel == sorted[i-1].CardLevel ||
			sorted[i].MinimumPoints < sorted[i-1].MinimumPoints {
			return TierEvaluation{}, ErrInvalidTierSet
		}
	}

	eligible := current
	found := false
	for _, tier := range sorted {
		threshold := decimal.NewFromInt(int64(tier.MinimumPoints))
		if totalPoints.LessThan(threshold) {
			break
		}
		eligible = tier
		found = true
	}

	evaluation := TierEvaluation{Tier: eligible, Transition: TransitionUnchanged}
	if !found {
		return evaluation, nil
	}
	switch {
	case eligible.CardLevel > current.CardLevel:
		evaluation.Transition = TransitionUpgrade
	case eligible.CardLevel < current.CardLevel:
		evaluation.Transition = TransitionDowngrade
	}
	return evaluation, nil
}
