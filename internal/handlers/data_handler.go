package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
	"conciliacion-service/internal/repositories"
	"conciliacion-service/internal/services"
)

// DataHandler covers the data-in and configuration surface: statement
// uploads, ledger imports, matching configuration, aliases and
// currencies.
type DataHandler struct {
	ingestionService *services.IngestionService
	configRepo       repositories.ConfigRepository
	aliasRepo        repositories.AliasRepository
	currencyRepo     repositories.CurrencyRepository
}

func NewDataHandler(
	ingestionService *services.IngestionService,
	configRepo repositories.ConfigRepository,
	aliasRepo repositories.AliasRepository,
	currencyRepo repositories.CurrencyRepository,
) *DataHandler {
	return &DataHandler{
		ingestionService: ingestionService,
		configRepo:       configRepo,
		aliasRepo:        aliasRepo,
		currencyRepo:     currencyRepo,
	}
}

// maxStatementSize caps statement uploads at 10 MiB.
const maxStatementSize = 10 << 20

func (h *DataHandler) IngestStatement(w http.ResponseWriter, r *http.Request) {
	accountID, year, month, err := periodVars(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	filename := r.URL.Query().Get("filename")
	content, err := io.ReadAll(io.LimitReader(r.Body, maxStatementSize))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(content) == 0 {
		respondWithError(w, http.StatusBadRequest, "Empty statement file")
		return
	}

	result, err := h.ingestionService.IngestStatement(accountID, year, month, filename, content)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

type ledgerEntryInput struct {
	Date          string              `json:"date"`
	Description   string              `json:"description"`
	Reference     string              `json:"reference"`
	Amount        decimal.Decimal     `json:"amount"`
	ForeignAmount decimal.NullDecimal `json:"foreign_amount"`
	ExchangeRate  decimal.NullDecimal `json:"exchange_rate"`
	CurrencyCode  string              `json:"currency_code"`
	Detail        string              `json:"detail"`
}

func (h *DataHandler) ImportLedger(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "account_id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var inputs []ledgerEntryInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(inputs) == 0 {
		respondWithError(w, http.StatusBadRequest, "No entries provided")
		return
	}

	entries := make([]services.LedgerEntry, 0, len(inputs))
	for i, in := range inputs {
		date, err := time.Parse("2006-01-02", in.Date)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid date in row %d. Use YYYY-MM-DD", i+1))
			return
		}
		entries = append(entries, services.LedgerEntry{
			Date:          date,
			Description:   in.Description,
			Reference:     in.Reference,
			Amount:        in.Amount,
			ForeignAmount: in.ForeignAmount,
			ExchangeRate:  in.ExchangeRate,
			CurrencyCode:  in.CurrencyCode,
			Detail:        in.Detail,
		})
	}

	result, err := h.ingestionService.ImportLedger(accountID, entries)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusPartialContent
	}
	respondWithJSON(w, status, result)
}

func (h *DataHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configRepo.GetActive()
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

func (h *DataHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	current, err := h.configRepo.GetActive()
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	cfg := *current
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	cfg.ID = current.ID

	updated, err := h.configRepo.Update(&cfg)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *DataHandler) ListAliases(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "account_id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	aliases, err := h.aliasRepo.GetByAccount(accountID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if aliases == nil {
		aliases = []models.Alias{}
	}
	respondWithJSON(w, http.StatusOK, aliases)
}

func (h *DataHandler) CreateAlias(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "account_id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var alias models.Alias
	if err := json.NewDecoder(r.Body).Decode(&alias); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	alias.AccountID = accountID

	created, err := h.aliasRepo.Create(&alias)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *DataHandler) UpdateAlias(w http.ResponseWriter, r *http.Request) {
	aliasID, err := pathID(r, "alias_id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if _, err := h.aliasRepo.GetByID(aliasID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	var alias models.Alias
	if err := json.NewDecoder(r.Body).Decode(&alias); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	alias.ID = aliasID

	updated, err := h.aliasRepo.Update(&alias)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *DataHandler) DeleteAlias(w http.ResponseWriter, r *http.Request) {
	aliasID, err := pathID(r, "alias_id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if err := h.aliasRepo.Delete(aliasID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Alias deleted"})
}

func (h *DataHandler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.currencyRepo.GetAll()
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if currencies == nil {
		currencies = []models.Currency{}
	}
	respondWithJSON(w, http.StatusOK, currencies)
}
