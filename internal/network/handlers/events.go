package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/denmor86/loyalty-engine/internal/helpers"
	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/denmor86/loyalty-engine/internal/services"
	"github.com/denmor86/loyalty-engine/internal/validators"
)

// EventRequest - уведомление хоста о созданной или изменённой записи
type EventRequest struct {
	RecordID string `json:"record_id"`
}

// TierEventResponse - результат переоценки уровня карты
type TierEventResponse struct {
	Transition string `json:"transition"`
}

// PurchaseEventHandler — обработка события записи покупки.
// Мягкие пропуски отдаются кодом 200 с признаком skipped.
func PurchaseEventHandler(purchases services.PurchaseService) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request, ok := decodeEvent(w, r)
		if !ok {
			return
		}

		outcome, err := purchases.ProcessPurchase(r.Context(), request.RecordID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(outcome); err != nil {
			logger.Error("Failed to encode JSON response:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	})
}

// CardEventHandler — обработка события записи карты лояльности:
// переоценка уровня по текущему балансу
func CardEventHandler(ledger services.LedgerService) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request, ok := decodeEvent(w, r)
		if !ok {
			return
		}

		transition, err := ledger.ReevaluateTier(r.Context(), request.RecordID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(TierEventResponse{Transition: transition}); err != nil {
			logger.Error("Failed to encode JSON response:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	})
}

// RedemptionEventHandler — обработка запроса на списание баллов.
// Ошибки жёсткие: хост должен отклонить породившую событие запись.
func RedemptionEventHandler(redemptions services.RedemptionService) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request, ok := decodeEvent(w, r)
		if !ok {
			return
		}

		if err := redemptions.ProcessRedemption(r.Context(), request.RecordID); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// CardNumberHandler — проверка номера карты лояльности (алгоритм Луна)
func CardNumberHandler() http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			CardNumber string `json:"card_number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid request format", http.StatusBadRequest)
			return
		}
		if !validators.CheckCardNumber(request.CardNumber) {
			http.Error(w, "Invalid card number format", http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func decodeEvent(w http.ResponseWriter, r *http.Request) (EventRequest, bool) {
	// идентификатор вызывающей стороны пишем в лог для трассировки хоста
	caller, err := helpers.GetCaller(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return EventRequest{}, false
	}

	var request EventRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("Invalid request format:", err)
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return EventRequest{}, false
	}
	if request.RecordID == "" {
		http.Error(w, "Missing record id", http.StatusBadRequest)
		return EventRequest{}, false
	}
	logger.Info("Record event", "caller", caller, "record", request.RecordID)
	return request, true
}

// writeEngineError - трансляция типизированных ошибок движка в HTTP статусы
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNoActiveCard):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInsufficientPoints):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, services.ErrUpdateConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInvalidProgramConfig),
		errors.Is(err, services.ErrInvalidTierSet),
		errors.Is(err, services.ErrRedemptionIncomplete):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.Error("Failed to process record event:", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
