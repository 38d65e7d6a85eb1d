package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"conciliacion-service/internal/extract"
	"conciliacion-service/internal/models"
	"conciliacion-service/internal/repositories"
)

// IngestionService loads external data into the reconciliation tables:
// statement files on the extracto side and ledger exports on the
// system side.
type IngestionService struct {
	db          *sql.DB
	registry    *extract.Registry
	extractRepo repositories.ExtractRepository
	systemRepo  repositories.SystemRepository
	accountRepo repositories.AccountRepository
	periods     *PeriodService
	currencies  *CurrencyCache
	log         zerolog.Logger
}

func NewIngestionService(
	db *sql.DB,
	registry *extract.Registry,
	extractRepo repositories.ExtractRepository,
	systemRepo repositories.SystemRepository,
	accountRepo repositories.AccountRepository,
	periods *PeriodService,
	currencies *CurrencyCache,
	log zerolog.Logger,
) *IngestionService {
	return &IngestionService{
		db:          db,
		registry:    registry,
		extractRepo: extractRepo,
		systemRepo:  systemRepo,
		accountRepo: accountRepo,
		periods:     periods,
		currencies:  currencies,
		log:         log,
	}
}

// IngestResult reports one statement upload.
type IngestResult struct {
	BatchID       string                       `json:"batch_id"`
	MovementCount int                          `json:"movement_count"`
	Extractor     string                       `json:"extractor"`
	Period        *models.ReconciliationPeriod `json:"period"`
}

// IngestStatement parses an uploaded statement file and replaces the
// period's extract movements wholesale, then refreshes the period
// aggregates from the file's summary block. Re-uploading the same file
// is idempotent.
func (s *IngestionService) IngestStatement(accountID int64, year, month int, filename string, content []byte) (*IngestResult, error) {
	if err := ValidatePeriodKey(year, month); err != nil {
		return nil, err
	}
	account, err := s.accountRepo.GetByID(accountID)
	if err != nil {
		return nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}

	extractor, err := s.registry.Resolve(account, filename, content)
	if err != nil {
		return nil, err
	}
	statement, err := extractor.Parse(content)
	if err != nil {
		return nil, err
	}

	movements := make([]*models.ExtractMovement, 0, len(statement.Movements))
	for _, raw := range statement.Movements {
		movements = append(movements, &models.ExtractMovement{
			Date:          raw.Date,
			Description:   raw.Description,
			Reference:     raw.Reference,
			Amount:        raw.Amount,
			ForeignAmount: raw.ForeignAmount,
			ExchangeRate:  raw.ExchangeRate,
			LineNumber:    raw.LineNumber,
			RawText:       raw.RawText,
		})
	}

	batchID := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	if err := s.extractRepo.ReplacePeriod(tx, accountID, year, month, movements); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("replacing period movements: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("batch_id", batchID).
		Str("extractor", extractor.Name()).
		Int64("account_id", accountID).
		Int("year", year).Int("month", month).
		Int("movements", len(movements)).
		Msg("statement ingested")

	period, err := s.savePeriodFromStatement(accountID, year, month, statement, movements)
	if err != nil {
		return nil, err
	}

	return &IngestResult{
		BatchID:       batchID,
		MovementCount: len(movements),
		Extractor:     extractor.Name(),
		Period:        period,
	}, nil
}

// savePeriodFromStatement builds the extracto aggregate from the
// statement's summary block, falling back to sums over the parsed
// lines for any value the format does not carry.
func (s *IngestionService) savePeriodFromStatement(accountID int64, year, month int, statement *extract.Statement, movements []*models.ExtractMovement) (*models.ReconciliationPeriod, error) {
	inflows, outflows := decimal.Zero, decimal.Zero
	for _, m := range movements {
		signed := m.SignedAmount()
		if signed.IsPositive() {
			inflows = inflows.Add(signed)
		} else {
			outflows = outflows.Add(signed.Abs())
		}
	}
	if statement.Summary.InflowsTotal.Valid {
		inflows = statement.Summary.InflowsTotal.Decimal
	}
	if statement.Summary.OutflowsTotal.Valid {
		outflows = statement.Summary.OutflowsTotal.Decimal
	}

	opening := decimal.Zero
	if statement.Summary.OpeningBalance.Valid {
		opening = statement.Summary.OpeningBalance.Decimal
	} else if current, err := s.periods.Get(accountID, year, month); err == nil {
		opening = current.ExtractOpeningBalance
	}

	closing := opening.Add(inflows).Sub(outflows)
	if statement.Summary.ClosingBalance.Valid {
		closing = statement.Summary.ClosingBalance.Decimal
	}

	period := &models.ReconciliationPeriod{
		AccountID:             accountID,
		Year:                  year,
		Month:                 month,
		ExtractOpeningBalance: opening,
		ExtractInflows:        inflows,
		ExtractOutflows:       outflows,
		ExtractClosingBalance: closing,
	}
	if statement.Summary.ClosingDate != nil {
		period.ClosingDate = *statement.Summary.ClosingDate
	}
	return s.periods.Save(period)
}

// LedgerEntry is one row of a system-side ledger export.
type LedgerEntry struct {
	Date          time.Time           `json:"date"`
	Description   string              `json:"description"`
	Reference     string              `json:"reference"`
	Amount        decimal.Decimal     `json:"amount"`
	ForeignAmount decimal.NullDecimal `json:"foreign_amount"`
	ExchangeRate  decimal.NullDecimal `json:"exchange_rate"`
	CurrencyCode  string              `json:"currency_code"`
	Detail        string              `json:"detail"`
}

// ImportResult reports one ledger import.
type ImportResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

type ledgerSignature struct {
	date        string
	amount      string
	reference   string
	description string
}

// ImportLedger inserts ledger rows that are not already present.
// Legitimate same-day duplicates are preserved by a multiset rule: for
// each signature the number inserted is the file's count minus the
// rows already stored, never negative. Rows fail independently.
func (s *IngestionService) ImportLedger(accountID int64, entries []LedgerEntry) (*ImportResult, error) {
	if _, err := s.accountRepo.GetByID(accountID); err != nil {
		return nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}

	result := &ImportResult{Errors: []string{}}
	remaining := make(map[ledgerSignature]int)

	for i, e := range entries {
		if e.Description == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: missing description", i+1))
			continue
		}
		sig := ledgerSignature{
			date:        e.Date.Format("2006-01-02"),
			amount:      e.Amount.String(),
			reference:   e.Reference,
			description: e.Description,
		}

		// First sighting of a signature fixes its quota: rows already
		// in the ledger count against the file's occurrences.
		quota, seen := remaining[sig]
		if !seen {
			stored, err := s.systemRepo.CountSimilar(accountID, e.Date, e.Amount, e.Reference, e.Description)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
				continue
			}
			fileCount := 0
			for _, other := range entries {
				if other.Date.Equal(e.Date) && other.Amount.Equal(e.Amount) &&
					other.Reference == e.Reference && other.Description == e.Description {
					fileCount++
				}
			}
			quota = fileCount - stored
			if quota < 0 {
				quota = 0
			}
		}
		if quota == 0 {
			remaining[sig] = 0
			result.Skipped++
			continue
		}
		remaining[sig] = quota - 1

		currencyID, err := s.currencies.Lookup(e.CurrencyCode)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}

		movement := &models.SystemMovement{
			AccountID:     accountID,
			CurrencyID:    currencyID,
			Date:          e.Date,
			Description:   e.Description,
			Reference:     e.Reference,
			Amount:        e.Amount,
			ForeignAmount: e.ForeignAmount,
			ExchangeRate:  e.ExchangeRate,
			Detail:        e.Detail,
		}
		tx, err := s.db.Begin()
		if err != nil {
			return nil, err
		}
		if err := s.systemRepo.Insert(tx, movement); err != nil {
			tx.Rollback()
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		if err := tx.Commit(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Inserted++
	}

	s.log.Info().
		Int64("account_id", accountID).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("ledger import finished")
	return result, nil
}
