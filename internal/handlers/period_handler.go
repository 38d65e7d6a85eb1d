package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
	"conciliacion-service/internal/services"
)

type PeriodHandler struct {
	periodService *services.PeriodService
}

func NewPeriodHandler(periodService *services.PeriodService) *PeriodHandler {
	return &PeriodHandler{periodService: periodService}
}

func (h *PeriodHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, year, month, err := periodVars(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	period, err := h.periodService.Get(accountID, year, month)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, period)
}

func (h *PeriodHandler) Save(w http.ResponseWriter, r *http.Request) {
	accountID, year, month, err := periodVars(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var request struct {
		ClosingDate           string          `json:"closing_date"`
		ExtractOpeningBalance decimal.Decimal `json:"extract_opening_balance"`
		ExtractInflows        decimal.Decimal `json:"extract_inflows"`
		ExtractOutflows       decimal.Decimal `json:"extract_outflows"`
		ExtractClosingBalance decimal.Decimal `json:"extract_closing_balance"`
		ExtraData             json.RawMessage `json:"extra_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	period := &models.ReconciliationPeriod{
		AccountID:             accountID,
		Year:                  year,
		Month:                 month,
		ExtractOpeningBalance: request.ExtractOpeningBalance,
		ExtractInflows:        request.ExtractInflows,
		ExtractOutflows:       request.ExtractOutflows,
		ExtractClosingBalance: request.ExtractClosingBalance,
		ExtraData:             request.ExtraData,
	}
	if request.ClosingDate != "" {
		closingDate, err := time.Parse("2006-01-02", request.ClosingDate)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid closing_date format. Use YYYY-MM-DD")
			return
		}
		period.ClosingDate = closingDate
	}

	saved, err := h.periodService.Save(period)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, saved)
}

func (h *PeriodHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	accountID, year, month, err := periodVars(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	period, err := h.periodService.Recompute(accountID, year, month)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, period)
}
