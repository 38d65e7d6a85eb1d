package services

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"conciliacion-service/internal/matching"
	"conciliacion-service/internal/models"
	"conciliacion-service/internal/repositories"
)

// MatchingService orchestrates the reconciliation matching flow:
// resolve the date window, strip invalid persisted matches, run the
// assignment algorithm over the residual pending sets, persist the new
// automatic matches and expose the manual operations.
type MatchingService struct {
	db          *sql.DB
	extractRepo repositories.ExtractRepository
	systemRepo  repositories.SystemRepository
	matchRepo   repositories.MatchRepository
	configRepo  repositories.ConfigRepository
	aliasRepo   repositories.AliasRepository
	accountRepo repositories.AccountRepository
	resolver    *DateRangeResolver
	guard       *IntegrityGuard
	log         zerolog.Logger
}

func NewMatchingService(
	db *sql.DB,
	extractRepo repositories.ExtractRepository,
	systemRepo repositories.SystemRepository,
	matchRepo repositories.MatchRepository,
	configRepo repositories.ConfigRepository,
	aliasRepo repositories.AliasRepository,
	accountRepo repositories.AccountRepository,
	resolver *DateRangeResolver,
	guard *IntegrityGuard,
	log zerolog.Logger,
) *MatchingService {
	return &MatchingService{
		db:          db,
		extractRepo: extractRepo,
		systemRepo:  systemRepo,
		matchRepo:   matchRepo,
		configRepo:  configRepo,
		aliasRepo:   aliasRepo,
		accountRepo: accountRepo,
		resolver:    resolver,
		guard:       guard,
		log:         log,
	}
}

// MatchingStats summarizes one matching run.
type MatchingStats struct {
	TotalExtract int `json:"total_extract"`
	TotalSystem  int `json:"total_system"`
	Exact        int `json:"exact"`
	Probable     int `json:"probable"`
	Unmatched    int `json:"unmatched"`
	Ignored      int `json:"ignored"`
}

// MatchingResult is the full outcome of a run for one period.
type MatchingResult struct {
	Matches                  []*models.Match          `json:"matches"`
	Stats                    MatchingStats            `json:"stats"`
	UnmatchedSystemMovements []*models.SystemMovement `json:"unmatched_system_movements"`
}

// Run executes matching for (account, year, month). Re-running without
// data changes is idempotent: persisted EXACTO/PROBABLE/manual matches
// are excluded from the pending pools by construction and SIN_MATCH
// records are recomputed fresh, never stored.
func (s *MatchingService) Run(accountID int64, year, month int) (*MatchingResult, error) {
	if err := ValidatePeriodKey(year, month); err != nil {
		return nil, err
	}
	account, err := s.accountRepo.GetByID(accountID)
	if err != nil {
		return nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}
	cfg, err := s.configRepo.GetActive()
	if err != nil {
		return nil, fmt.Errorf("loading matching configuration: %w", err)
	}

	// Credit-card statements repeat descriptions across cycles and are
	// the most prone to mis-linking; those accounts get the strict
	// one-to-one repair before every run. Best-effort only.
	if account.StrictIntegrity() {
		if deleted, err := s.guard.RepairOneToMany(accountID, year, month); err != nil {
			s.log.Error().Err(err).Int64("account_id", accountID).Msg("integrity repair failed, continuing")
		} else if deleted > 0 {
			s.log.Info().Int("deleted", deleted).Int64("account_id", accountID).Msg("integrity repair removed matches")
		}
	}

	extracts, err := s.extractRepo.GetByPeriod(accountID, year, month)
	if err != nil {
		return nil, fmt.Errorf("loading extract movements: %w", err)
	}

	start, end, err := s.resolver.Resolve(accountID, year, month)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int64("account_id", accountID).
		Int("year", year).Int("month", month).
		Time("start", start).Time("end", end).
		Int("extract_count", len(extracts)).
		Msg("running matching")

	systems, err := s.systemRepo.SearchByDateRange(accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading system movements: %w", err)
	}

	existing, err := s.matchRepo.GetByPeriod(accountID, year, month)
	if err != nil {
		return nil, fmt.Errorf("loading persisted matches: %w", err)
	}
	valid := s.guard.RemoveOrphans(existing)

	processedExtracts := make(map[int64]bool, len(valid))
	occupiedSystems := make(map[int64]bool, len(valid))
	for _, m := range valid {
		processedExtracts[m.ExtractMovement.ID] = true
		if m.Linked() {
			occupiedSystems[m.SystemMovement.ID] = true
		}
	}

	var pending []*models.ExtractMovement
	for _, e := range extracts {
		if !processedExtracts[e.ID] {
			pending = append(pending, e)
		}
	}
	var available []*models.SystemMovement
	for _, m := range systems {
		if !occupiedSystems[m.ID] {
			available = append(available, m)
		}
	}

	aliases, err := s.aliasRepo.GetByAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("loading aliases: %w", err)
	}

	engine := matching.NewEngine(cfg, aliases, s.log)
	newMatches := engine.Run(pending, available)

	// Only EXACTO and PROBABLE are persisted; a failed save is logged
	// and the record stays in the response as computed.
	for _, m := range newMatches {
		if m.State != models.StateExacto && m.State != models.StateProbable {
			continue
		}
		saved, err := s.matchRepo.Save(m)
		if err != nil {
			s.log.Warn().Err(err).
				Int64("extract_id", m.ExtractMovement.ID).
				Msg("persisting match failed")
			continue
		}
		m.ID = saved.ID
		m.CreatedAt = saved.CreatedAt
	}

	usedSystems := make(map[int64]bool, len(newMatches))
	for _, m := range newMatches {
		if m.SystemMovement != nil {
			usedSystems[m.SystemMovement.ID] = true
		}
	}
	var unmatchedSystem []*models.SystemMovement
	for _, m := range available {
		if !usedSystems[m.ID] {
			unmatchedSystem = append(unmatchedSystem, m)
		}
	}
	sort.Slice(unmatchedSystem, func(i, j int) bool {
		if !unmatchedSystem[i].Date.Equal(unmatchedSystem[j].Date) {
			return unmatchedSystem[i].Date.After(unmatchedSystem[j].Date)
		}
		return unmatchedSystem[i].ID < unmatchedSystem[j].ID
	})

	final := append(valid, newMatches...)
	sort.Slice(final, func(i, j int) bool {
		a, b := final[i].ExtractMovement, final[j].ExtractMovement
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if cmp := a.SignedAmount().Abs().Cmp(b.SignedAmount().Abs()); cmp != 0 {
			return cmp > 0
		}
		return a.ID < b.ID
	})

	stats := MatchingStats{
		TotalExtract: len(extracts),
		TotalSystem:  len(systems),
	}
	for _, m := range final {
		switch m.State {
		case models.StateExacto, models.StateManual:
			stats.Exact++
		case models.StateProbable:
			stats.Probable++
		case models.StateSinMatch:
			stats.Unmatched++
		case models.StateIgnorado:
			stats.Ignored++
		}
	}

	return &MatchingResult{
		Matches:                  final,
		Stats:                    stats,
		UnmatchedSystemMovements: unmatchedSystem,
	}, nil
}

// LinkManual pairs an extract movement with a system movement on user
// request. The match is stored as confirmed EXACTO; scores are still
// computed for audit. Linking an occupied system movement is rejected.
func (s *MatchingService) LinkManual(extractID, systemID int64, user, notes string) (*models.Match, error) {
	ext, err := s.extractRepo.GetByID(extractID)
	if err != nil {
		return nil, fmt.Errorf("extract movement %d: %w", extractID, err)
	}
	sys, err := s.systemRepo.GetByID(systemID)
	if err != nil {
		return nil, fmt.Errorf("system movement %d: %w", systemID, err)
	}

	if occupied, err := s.matchRepo.GetBySystemID(systemID); err == nil {
		if occupied.ExtractMovement.ID != extractID {
			return nil, models.NewConflictError(systemID)
		}
	} else if err != models.ErrNotFound {
		return nil, err
	}

	scores, err := s.scorePair(ext, sys)
	if err != nil {
		return nil, err
	}

	match := &models.Match{
		ExtractMovement:  ext,
		SystemMovement:   sys,
		State:            models.StateExacto,
		ScoreTotal:       scores.Total,
		ScoreDate:        scores.Date,
		ScoreAmount:      scores.Amount,
		ScoreDescription: scores.Description,
		ConfirmedByUser:  true,
		CreatedBy:        user,
		Notes:            notes,
	}
	saved, err := s.matchRepo.Save(match)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("extract_id", extractID).Int64("system_id", systemID).Str("user", user).Msg("manual link saved")
	return saved, nil
}

// Unlink deletes the match owned by an extract movement. Returns
// ErrNotFound when none exists.
func (s *MatchingService) Unlink(extractID int64) error {
	if err := s.matchRepo.DeleteByExtractID(extractID); err != nil {
		return err
	}
	s.log.Info().Int64("extract_id", extractID).Msg("match unlinked")
	return nil
}

// Ignore marks an extract movement as deliberately unmatched
// (duplicates, irrelevant statement noise). No system movement is
// attached.
func (s *MatchingService) Ignore(extractID int64, user, reason string) (*models.Match, error) {
	ext, err := s.extractRepo.GetByID(extractID)
	if err != nil {
		return nil, fmt.Errorf("extract movement %d: %w", extractID, err)
	}
	match := &models.Match{
		ExtractMovement: ext,
		State:           models.StateIgnorado,
		ConfirmedByUser: true,
		CreatedBy:       user,
		Notes:           reason,
	}
	return s.matchRepo.Save(match)
}

// CreateMovementItem is one request row for CreateAndLinkBatch. Date
// and description default to the extract movement's own values.
type CreateMovementItem struct {
	ExtractMovementID int64      `json:"extract_movement_id"`
	Date              *time.Time `json:"date,omitempty"`
	Description       string     `json:"description,omitempty"`
}

// BatchResult reports a create-and-link batch.
type BatchResult struct {
	Created int      `json:"created"`
	Errors  []string `json:"errors"`
}

// CreateAndLinkBatch legalizes unmatched statement lines: for each
// item it reuses an identical free system movement when one exists,
// otherwise creates one from the extract data, then links it as a
// confirmed EXACTO match. Items fail independently; the batch never
// aborts.
func (s *MatchingService) CreateAndLinkBatch(items []CreateMovementItem, user string) *BatchResult {
	result := &BatchResult{Errors: []string{}}
	if user == "" {
		user = "sistema"
	}
	for _, item := range items {
		if err := s.createAndLink(item, user, result); err != nil {
			s.log.Error().Err(err).Int64("extract_id", item.ExtractMovementID).Msg("create-and-link item failed")
			result.Errors = append(result.Errors, fmt.Sprintf("ID %d: %v", item.ExtractMovementID, err))
		}
	}
	return result
}

func (s *MatchingService) createAndLink(item CreateMovementItem, user string, result *BatchResult) error {
	ext, err := s.extractRepo.GetByID(item.ExtractMovementID)
	if err != nil {
		return err
	}

	date := ext.Date
	if item.Date != nil {
		date = *item.Date
	}
	description := ext.Description
	if item.Description != "" {
		description = item.Description
	}

	// Reuse an identical, unoccupied ledger entry before creating a
	// new one; repeated clicks must not multiply movements.
	sys, err := s.systemRepo.FindExactUnlinked(ext.AccountID, date, ext.Amount, ext.Reference, description)
	switch err {
	case nil:
		s.log.Info().Int64("system_id", sys.ID).Msg("reusing existing free system movement")
	case models.ErrNotFound:
		sys = &models.SystemMovement{
			AccountID:     ext.AccountID,
			CurrencyID:    models.LocalCurrencyID,
			Date:          date,
			Description:   description,
			Reference:     ext.Reference,
			Amount:        ext.Amount,
			ForeignAmount: ext.ForeignAmount,
			ExchangeRate:  ext.ExchangeRate,
			Detail:        "creado desde conciliación",
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if err := s.systemRepo.Insert(tx, sys); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		result.Created++
	default:
		return err
	}

	scores, err := s.scorePair(ext, sys)
	if err != nil {
		return err
	}
	match := &models.Match{
		ExtractMovement:  ext,
		SystemMovement:   sys,
		State:            models.StateExacto,
		ScoreTotal:       scores.Total,
		ScoreDate:        scores.Date,
		ScoreAmount:      scores.Amount,
		ScoreDescription: scores.Description,
		ConfirmedByUser:  true,
		CreatedBy:        user,
		Notes:            "creado/vinculado desde extracto",
	}
	_, err = s.matchRepo.Save(match)
	return err
}

// SystemUniverse returns every system movement relevant to a period's
// display: the dynamic-window query result plus any movement of
// another period already linked to this period's matches (transfers
// and cheques cleared in a different month).
func (s *MatchingService) SystemUniverse(accountID int64, year, month int) ([]*models.SystemMovement, error) {
	start, end, err := s.resolver.Resolve(accountID, year, month)
	if err != nil {
		return nil, err
	}
	inWindow, err := s.systemRepo.SearchByDateRange(accountID, start, end)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.GetByPeriod(accountID, year, month)
	if err != nil {
		return nil, err
	}

	universe := make(map[int64]*models.SystemMovement, len(inWindow))
	for _, m := range inWindow {
		universe[m.ID] = m
	}
	var missing []int64
	for _, m := range matches {
		if m.SystemMovement != nil {
			if _, ok := universe[m.SystemMovement.ID]; !ok {
				missing = append(missing, m.SystemMovement.ID)
			}
		}
	}
	if len(missing) > 0 {
		extra, err := s.systemRepo.GetByIDs(missing)
		if err != nil {
			return nil, err
		}
		for _, m := range extra {
			universe[m.ID] = m
		}
	}

	movements := make([]*models.SystemMovement, 0, len(universe))
	for _, m := range universe {
		movements = append(movements, m)
	}
	sort.Slice(movements, func(i, j int) bool {
		if !movements[i].Date.Equal(movements[j].Date) {
			return movements[i].Date.Before(movements[j].Date)
		}
		return movements[i].ID < movements[j].ID
	})
	return movements, nil
}

func (s *MatchingService) scorePair(ext *models.ExtractMovement, sys *models.SystemMovement) (matching.PairScores, error) {
	cfg, err := s.configRepo.GetActive()
	if err != nil {
		return matching.PairScores{}, fmt.Errorf("loading matching configuration: %w", err)
	}
	aliases, err := s.aliasRepo.GetByAccount(ext.AccountID)
	if err != nil {
		return matching.PairScores{}, err
	}
	engine := matching.NewEngine(cfg, aliases, s.log)
	return engine.Score(ext, sys), nil
}
