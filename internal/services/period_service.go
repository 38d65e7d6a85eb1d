package services

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
	"conciliacion-service/internal/repositories"
)

// PeriodService manages reconciliation period aggregates. Reads are
// self-healing: the stored extracto totals are compared against the
// actual statement lines on every Get and rewritten when they drift.
type PeriodService struct {
	periodRepo  repositories.PeriodRepository
	extractRepo repositories.ExtractRepository
	systemRepo  repositories.SystemRepository
	accountRepo repositories.AccountRepository
	log         zerolog.Logger
}

func NewPeriodService(
	periodRepo repositories.PeriodRepository,
	extractRepo repositories.ExtractRepository,
	systemRepo repositories.SystemRepository,
	accountRepo repositories.AccountRepository,
	log zerolog.Logger,
) *PeriodService {
	return &PeriodService{
		periodRepo:  periodRepo,
		extractRepo: extractRepo,
		systemRepo:  systemRepo,
		accountRepo: accountRepo,
		log:         log,
	}
}

// Get returns the period, healing stored extracto aggregates that no
// longer agree with the statement lines. When no period row exists yet
// it returns an unpersisted NUEVO draft whose opening balance is the
// previous period's closing balance.
func (s *PeriodService) Get(accountID int64, year, month int) (*models.ReconciliationPeriod, error) {
	if err := ValidatePeriodKey(year, month); err != nil {
		return nil, err
	}
	period, err := s.periodRepo.GetByPeriod(accountID, year, month)
	if errors.Is(err, models.ErrNotFound) {
		return s.draft(accountID, year, month)
	}
	if err != nil {
		return nil, err
	}
	return s.syncExtractSide(period)
}

// Save persists the extracto side entered by the user and moves the
// period to PENDIENTE. The system side is recomputed afterwards on a
// best-effort basis so the response already carries both columns.
func (s *PeriodService) Save(p *models.ReconciliationPeriod) (*models.ReconciliationPeriod, error) {
	if err := ValidatePeriodKey(p.Year, p.Month); err != nil {
		return nil, err
	}
	if _, err := s.accountRepo.GetByID(p.AccountID); err != nil {
		return nil, fmt.Errorf("loading account %d: %w", p.AccountID, err)
	}
	if p.ClosingDate.IsZero() {
		_, p.ClosingDate = MonthBounds(p.Year, p.Month)
	}
	p.State = models.PeriodStatePendiente

	saved, err := s.periodRepo.Upsert(p)
	if err != nil {
		return nil, err
	}
	if !saved.InternallyConsistent() {
		s.log.Warn().
			Int64("period_id", saved.ID).
			Str("extract_closing", saved.ExtractClosingBalance.String()).
			Msg("extracto aggregates are not internally consistent")
	}

	recomputed, err := s.Recompute(p.AccountID, p.Year, p.Month)
	if err != nil {
		s.log.Error().Err(err).Int64("period_id", saved.ID).Msg("system side recompute failed after save")
		return saved, nil
	}
	return recomputed, nil
}

// Recompute refreshes the system side of a persisted period from the
// ledger's calendar-month totals. Recomputing a period that was never
// saved returns ErrRecomputeNotAllowed: without a stored opening
// balance the system closing balance would be meaningless.
func (s *PeriodService) Recompute(accountID int64, year, month int) (*models.ReconciliationPeriod, error) {
	if err := ValidatePeriodKey(year, month); err != nil {
		return nil, err
	}
	if _, err := s.periodRepo.GetByPeriod(accountID, year, month); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRecomputeNotAllowed
		}
		return nil, err
	}

	inflows, outflows, err := s.systemRepo.SumByMonth(accountID, year, month)
	if err != nil {
		return nil, fmt.Errorf("summing system movements: %w", err)
	}
	if err := s.periodRepo.UpdateSystemSide(accountID, year, month, inflows, outflows); err != nil {
		return nil, err
	}
	s.log.Info().
		Int64("account_id", accountID).
		Int("year", year).Int("month", month).
		Str("inflows", inflows.String()).
		Str("outflows", outflows.String()).
		Msg("system side recomputed")

	period, err := s.periodRepo.GetByPeriod(accountID, year, month)
	if err != nil {
		return nil, err
	}
	period, err = s.syncExtractSide(period)
	if err != nil {
		return nil, err
	}

	if period.Reconciled() && period.State != models.PeriodStateCuadrado {
		period.State = models.PeriodStateCuadrado
		return s.periodRepo.Upsert(period)
	}
	return period, nil
}

// draft builds the unpersisted starting point for a period that has no
// row yet. The previous period's closing balance seeds the opening
// balance so consecutive months chain.
func (s *PeriodService) draft(accountID int64, year, month int) (*models.ReconciliationPeriod, error) {
	if _, err := s.accountRepo.GetByID(accountID); err != nil {
		return nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}

	opening := decimal.Zero
	prevYear, prevMonth := PreviousPeriodKey(year, month)
	if prev, err := s.periodRepo.GetByPeriod(accountID, prevYear, prevMonth); err == nil {
		opening = prev.ExtractClosingBalance
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	_, closingDate := MonthBounds(year, month)
	return &models.ReconciliationPeriod{
		AccountID:             accountID,
		Year:                  year,
		Month:                 month,
		ClosingDate:           closingDate,
		ExtractOpeningBalance: opening,
		ExtractClosingBalance: opening,
		State:                 models.PeriodStateNuevo,
	}, nil
}

// syncExtractSide compares stored extracto totals against the actual
// statement lines and rewrites them on drift beyond the balance
// tolerance. A period whose statement lines were all removed is forced
// back to a zero aggregate, opening balance included.
func (s *PeriodService) syncExtractSide(p *models.ReconciliationPeriod) (*models.ReconciliationPeriod, error) {
	inflows, outflows, err := s.extractRepo.SumByPeriod(p.AccountID, p.Year, p.Month)
	if err != nil {
		return nil, fmt.Errorf("summing extract movements: %w", err)
	}

	empty := inflows.IsZero() && outflows.IsZero()
	opening := p.ExtractOpeningBalance
	if empty {
		opening = decimal.Zero
	}

	inflowsDrift := p.ExtractInflows.Sub(inflows).Abs()
	outflowsDrift := p.ExtractOutflows.Sub(outflows).Abs()
	openingDrift := p.ExtractOpeningBalance.Sub(opening).Abs()
	if inflowsDrift.LessThan(models.BalanceTolerance) &&
		outflowsDrift.LessThan(models.BalanceTolerance) &&
		openingDrift.LessThan(models.BalanceTolerance) {
		return p, nil
	}

	closing := opening.Add(inflows).Sub(outflows)
	s.log.Warn().
		Int64("period_id", p.ID).
		Str("stored_inflows", p.ExtractInflows.String()).
		Str("actual_inflows", inflows.String()).
		Str("stored_outflows", p.ExtractOutflows.String()).
		Str("actual_outflows", outflows.String()).
		Msg("extracto aggregate drift detected, healing")
	if err := s.periodRepo.UpdateExtractSide(p.ID, opening, inflows, outflows, closing); err != nil {
		return nil, err
	}
	return s.periodRepo.GetByPeriod(p.AccountID, p.Year, p.Month)
}

// PreviousPeriodKey returns the (year, month) immediately before the
// given key.
func PreviousPeriodKey(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
