package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/denmor86/loyalty-engine/internal/records/mocks"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
)

const (
	testRetryCount   = 3
	testRetryBackoff = time.Millisecond
)

// newTestLedger - леджер над хранилищем в памяти
func newTestLedger(store records.Store) LedgerService {
	return NewLedger(store, NewAuditRecorder(store), testRetryCount, testRetryBackoff)
}

func seedTier(t *testing.T, store records.Store, name string, level int, minimumPoints int) string {
	t.Helper()
	id, err := store.Create(context.Background(), models.RecordCardTier, records.Fields{
		"name":           name,
		"card_level":     level,
		"minimum_points": minimumPoints,
	})
	if err != nil {
		t.Fatalf("failed to seed tier: %v", err)
	}
	return id
}

func seedCard(t *testing.T, store records.Store, customerID string, tierID string, totalPoints string) string {
	t.Helper()
	id, err := store.Create(context.Background(), models.RecordLoyaltyCard, records.Fields{
		"customer_id":  customerID,
		"card_number":  "4561261212345467",
		"tier_id":      tierID,
		"total_points": totalPoints,
		"status":       models.CardStatusActive,
		"tier_checked": true,
	})
	if err != nil {
		t.Fatalf("failed to seed card: %v", err)
	}
	return id
}

func cardPoints(t *testing.T, store records.Store, cardID string) decimal.Decimal {
	t.Helper()
	record, err := store.Get(context.Background(), models.RecordLoyaltyCard, cardID)
	if err != nil {
		t.Fatalf("failed to get card: %v", err)
	}
	return record.Fields.Decimal("total_points")
}

func TestLedger_ApplyEarnedPoints(t *testing.T) {
	store := records.NewMemory()
	ledger := newTestLedger(store)
	tierID := seedTier(t, store, "Silver", 1, 0)
	cardID := seedCard(t, store, "customer-1", tierID, "100")

	ctx := context.Background()

	if err := ledger.ApplyEarnedPoints(ctx, cardID, decimal.NewFromInt(-1)); !errors.Is(err, ErrNegativeDelta) {
		t.Errorf("Expected error '%v', got: '%v'", ErrNegativeDelta, err)
	}

	if err := ledger.ApplyEarnedPoints(ctx, cardID, decimal.RequireFromString("12.5")); err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if balance := cardPoints(t, store, cardID); !balance.Equal(decimal.RequireFromString("112.5")) {
		t.Errorf("Expected balance '112.5', got: '%s'", balance)
	}

	// начисление помечает карту на переоценку уровня
	record, err := store.Get(ctx, models.RecordLoyaltyCard, cardID)
	if err != nil {
		t.Fatalf("failed to get card: %v", err)
	}
	if record.Fields.Bool("tier_checked") {
		t.Errorf("Expected card marked for tier evaluation")
	}

	if err := ledger.ApplyEarnedPoints(ctx, "missing", decimal.NewFromInt(1)); !errors.Is(err, records.ErrRecordNotFound) {
		t.Errorf("Expected error '%v', got: '%v'", records.ErrRecordNotFound, err)
	}
}

func TestLedger_ApplyEarnedPoints_Concurrent(t *testing.T) {
	store := records.NewMemory()
	// большой запас повторов: все горутины бьются за одну карту
	ledger := NewLedger(store, NewAuditRecorder(store), 100, time.Millisecond)
	tierID := seedTier(t, store, "Silver", 1, 0)
	cardID := seedCard(t, store, "customer-1", tierID, "10")

	const workers = 50
	delta := decimal.RequireFromString("1.5")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.ApplyEarnedPoints(context.Background(), cardID, delta); err != nil {
				t.Errorf("Expected no error, got: '%v'", err)
			}
		}()
	}
	wg.Wait()

	// initial + N*delta, без потерянных обновлений
	expected := decimal.NewFromInt(10).Add(delta.Mul(decimal.NewFromInt(workers)))
	if balance := cardPoints(t, store, cardID); !balance.Equal(expected) {
		t.Errorf("Expected balance '%s', got: '%s'", expected, balance)
	}
}

func TestLedger_ApplyEarnedPoints_ConflictExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockStore := mocks.NewMockStore(ctrl)

	ledger := NewLedger(mockStore, NewAuditRecorder(mockStore), testRetryCount, testRetryBackoff)

	card := &records.Record{
		ID:   "card-1",
		Type: models.RecordLoyaltyCard,
		Fields: records.Fields{
			"customer_id": "customer-1", "tier_id": "t1",
			"total_points": "100", "status": models.CardStatusActive,
		},
		Version: 1,
	}
	// запись всегда проигрывает гонку за версию
	mockStore.EXPECT().Get(gomock.Any(), models.RecordLoyaltyCard, "card-1").Return(card, nil).AnyTimes()
	mockStore.EXPECT().UpdateIf(gomock.Any(), models.RecordLoyaltyCard, "card-1", gomock.Any(), int64(1)).Return(records.ErrVersionConflict).AnyTimes()

	err := ledger.ApplyEarnedPoints(context.Background(), "card-1", decimal.NewFromInt(5))
	if !errors.Is(err, ErrUpdateConflict) {
		t.Errorf("Expected error '%v', got: '%v'", ErrUpdateConflict, err)
	}
}

func TestLedger_DeductPoints(t *testing.T) {
	store := records.NewMemory()
	ledger := newTestLedger(store)
	tierID := seedTier(t, store, "Silver", 1, 0)
	cardID := seedCard(t, store, "customer-1", tierID, "150")

	ctx := context.Background()

	if _, err := ledger.DeductPoints(ctx, cardID, decimal.Zero); !errors.Is(err, ErrInvalidDeductAmount) {
		t.Errorf("Expected error '%v', got: '%v'", ErrInvalidDeductAmount, err)
	}

	// списание сверх баланса отклоняется, баланс не меняется
	if _, err := ledger.DeductPoints(ctx, cardID, decimal.NewFromInt(200)); !errors.Is(err, ErrInsufficientPoints) {
		t.Errorf("Expected error '%v', got: '%v'", ErrInsufficientPoints, err)
	}
	if balance := cardPoints(t, store, cardID); !balance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected balance '150', got: '%s'", balance)
	}

	snapshot, err := ledger.DeductPoints(ctx, cardID, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if !snapshot.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected snapshot '150', got: '%s'", snapshot)
	}
	if balance := cardPoints(t, store, cardID); !balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected balance '50', got: '%s'", balance)
	}
}

func TestLedger_ReevaluateTier(t *testing.T) {
	store := records.NewMemory()
	ledger := newTestLedger(store)
	silverID := seedTier(t, store, "Silver", 1, 0)
	goldID := seedTier(t, store, "Gold", 2, 100)
	cardID := seedCard(t, store, "customer-1", silverID, "150")

	ctx := context.Background()

	transition, err := ledger.ReevaluateTier(ctx, cardID)
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if transition != TransitionUpgrade {
		t.Errorf("Expected transition '%s', got: '%s'", TransitionUpgrade, transition)
	}

	record, err := store.Get(ctx, models.RecordLoyaltyCard, cardID)
	if err != nil {
		t.Fatalf("failed to get card: %v", err)
	}
	if tierID := record.Fields.String("tier_id"); tierID != goldID {
		t.Errorf("Expected tier '%s', got: '%s'", goldID, tierID)
	}
	if !record.Fields.Bool("tier_checked") {
		t.Errorf("Expected card marked as checked")
	}

	// при смене уровня появляется аудит-заметка
	notes, err := store.Query(ctx, models.RecordAuditNote, records.Filters{"card_id": cardID}, records.Order{}, 0)
	if err != nil {
		t.Fatalf("failed to query notes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("Expected 1 audit note, got: %d", len(notes))
	}
	if subject := notes[0].Fields.String("subject"); subject != "Loyalty Card Upgraded" {
		t.Errorf("Expected upgrade note subject, got: '%s'", subject)
	}

	// повторная переоценка с тем же балансом ничего не меняет
	transition, err = ledger.ReevaluateTier(ctx, cardID)
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if transition != TransitionUnchanged {
		t.Errorf("Expected transition '%s', got: '%s'", TransitionUnchanged, transition)
	}
	notes, _ = store.Query(ctx, models.RecordAuditNote, records.Filters{"card_id": cardID}, records.Order{}, 0)
	if len(notes) != 1 {
		t.Errorf("Expected no extra audit notes, got: %d", len(notes))
	}
}

func TestLedger_ReevaluateTier_Downgrade(t *testing.T) {
	store := records.NewMemory()
	ledger := newTestLedger(store)
	silverID := seedTier(t, store, "Silver", 1, 0)
	goldID := seedTier(t, store, "Gold", 2, 100)
	cardID := seedCard(t, store, "customer-1", goldID, "50")

	ctx := context.Background()

	transition, err := ledger.ReevaluateTier(ctx, cardID)
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if transition != TransitionDowngrade {
		t.Errorf("Expected transition '%s', got: '%s'", TransitionDowngrade, transition)
	}

	record, _ := store.Get(ctx, models.RecordLoyaltyCard, cardID)
	if tierID := record.Fields.String("tier_id"); tierID != silverID {
		t.Errorf("Expected tier '%s', got: '%s'", silverID, tierID)
	}

	notes, _ := store.Query(ctx, models.RecordAuditNote, records.Filters{"card_id": cardID}, records.Order{}, 0)
	if len(notes) != 1 {
		t.Fatalf("Expected 1 audit note, got: %d", len(notes))
	}
	if subject := notes[0].Fields.String("subject"); subject != "Loyalty Card Downgraded" {
		t.Errorf("Expected downgrade note subject, got: '%s'", subject)
	}
}

func TestLedger_ReevaluateTier_NoTier(t *testing.T) {
	store := records.NewMemory()
	ledger := newTestLedger(store)
	seedTier(t, store, "Silver", 1, 0)
	cardID := seedCard(t, store, "customer-1", "", "10")

	ctx := context.Background()

	// начисление помечает карту на переоценку
	if err := ledger.ApplyEarnedPoints(ctx, cardID, decimal.NewFromInt(5)); err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}

	transition, err := ledger.ReevaluateTier(ctx, cardID)
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if transition != TransitionUnchanged {
		t.Errorf("Expected transition '%s', got: '%s'", TransitionUnchanged, transition)
	}

	// карта без уровня не должна навсегда оставаться в очереди воркера
	record, err := store.Get(ctx, models.RecordLoyaltyCard, cardID)
	if err != nil {
		t.Fatalf("failed to get card: %v", err)
	}
	if !record.Fields.Bool("tier_checked") {
		t.Errorf("Expected card marked as checked")
	}
	pending, err := ledger.PendingCards(ctx, 10)
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending cards, got: %d", len(pending))
	}
}

func TestLedger_FindActiveCard(t *testing.T) {
	store := records.NewMemory()
	ledger := newTestLedger(store)
	tierID := seedTier(t, store, "Silver", 1, 0)
	cardID := seedCard(t, store, "customer-1", tierID, "10")

	ctx := context.Background()

	card, err := ledger.FindActiveCard(ctx, "customer-1")
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if card == nil || card.ID != cardID {
		t.Errorf("Expected card '%s', got: '%v'", cardID, card)
	}

	// отсутствие карты — не ошибка
	card, err = ledger.FindActiveCard(ctx, "unknown")
	if err != nil {
		t.Errorf("Expected no error, got: '%v'", err)
	}
	if card != nil {
		t.Errorf("Expected no card, got: '%v'", card)
	}
}

func TestLedger_PendingCards(t *testing.T) {
	store := records.NewMemory()
	ledger := newTestLedger(store)
	tierID := seedTier(t, store, "Silver", 1, 0)
	firstID := seedCard(t, store, "customer-1", tierID, "10")
	secondID := seedCard(t, store, "customer-2", tierID, "20")

	ctx := context.Background()

	// свежие карты уже проверены, очередь пуста
	pending, err := ledger.PendingCards(ctx, 10)
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending cards, got: %d", len(pending))
	}

	if err := ledger.ApplyEarnedPoints(ctx, firstID, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if err := ledger.ApplyEarnedPoints(ctx, secondID, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}

	pending, err = ledger.PendingCards(ctx, 1)
	if err != nil {
		t.Fatalf("Expected no error, got: '%v'", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending card (limit), got: %d", len(pending))
	}

	pending, _ = ledger.PendingCards(ctx, 10)
	if len(pending) != 2 {
		t.Errorf("Expected 2 pending cards, got: %d", len(pending))
	}
}
