package services

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
	"conciliacion-service/internal/repositories"
)

// In-memory repository fakes used across the service tests.

var (
	_ repositories.ExtractRepository  = (*fakeExtractRepo)(nil)
	_ repositories.SystemRepository   = (*fakeSystemRepo)(nil)
	_ repositories.MatchRepository    = (*fakeMatchRepo)(nil)
	_ repositories.ConfigRepository   = (*fakeConfigRepo)(nil)
	_ repositories.AliasRepository    = (*fakeAliasRepo)(nil)
	_ repositories.AccountRepository  = (*fakeAccountRepo)(nil)
	_ repositories.PeriodRepository   = (*fakePeriodRepo)(nil)
	_ repositories.CurrencyRepository = (*fakeCurrencyRepo)(nil)
)

type fakeExtractRepo struct {
	movements []*models.ExtractMovement
}

func (r *fakeExtractRepo) GetByID(id int64) (*models.ExtractMovement, error) {
	for _, m := range r.movements {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeExtractRepo) GetByPeriod(accountID int64, year, month int) ([]*models.ExtractMovement, error) {
	var out []*models.ExtractMovement
	for _, m := range r.movements {
		if m.AccountID == accountID && m.Year == year && m.Month == month {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeExtractRepo) ReplacePeriod(tx *sql.Tx, accountID int64, year, month int, movements []*models.ExtractMovement) error {
	var kept []*models.ExtractMovement
	for _, m := range r.movements {
		if !(m.AccountID == accountID && m.Year == year && m.Month == month) {
			kept = append(kept, m)
		}
	}
	for i, m := range movements {
		m.ID = int64(1000 + i)
		m.AccountID = accountID
		m.Year = year
		m.Month = month
		kept = append(kept, m)
	}
	r.movements = kept
	return nil
}

func (r *fakeExtractRepo) SumByPeriod(accountID int64, year, month int) (decimal.Decimal, decimal.Decimal, error) {
	inflows, outflows := decimal.Zero, decimal.Zero
	for _, m := range r.movements {
		if m.AccountID != accountID || m.Year != year || m.Month != month {
			continue
		}
		signed := m.SignedAmount()
		if signed.IsPositive() {
			inflows = inflows.Add(signed)
		} else {
			outflows = outflows.Add(signed.Abs())
		}
	}
	return inflows, outflows, nil
}

type fakeSystemRepo struct {
	movements []*models.SystemMovement
}

func (r *fakeSystemRepo) GetByID(id int64) (*models.SystemMovement, error) {
	for _, m := range r.movements {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeSystemRepo) GetByIDs(ids []int64) ([]*models.SystemMovement, error) {
	var out []*models.SystemMovement
	for _, id := range ids {
		if m, err := r.GetByID(id); err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeSystemRepo) SearchByDateRange(accountID int64, from, to time.Time) ([]*models.SystemMovement, error) {
	var out []*models.SystemMovement
	for _, m := range r.movements {
		if m.AccountID == accountID && !m.Date.Before(from) && !m.Date.After(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeSystemRepo) FindExactUnlinked(accountID int64, date time.Time, amount decimal.Decimal, reference, description string) (*models.SystemMovement, error) {
	return nil, models.ErrNotFound
}

func (r *fakeSystemRepo) CountSimilar(accountID int64, date time.Time, amount decimal.Decimal, reference, description string) (int, error) {
	count := 0
	for _, m := range r.movements {
		if m.AccountID == accountID && m.Date.Equal(date) && m.Amount.Equal(amount) &&
			m.Reference == reference && m.Description == description {
			count++
		}
	}
	return count, nil
}

func (r *fakeSystemRepo) Insert(tx *sql.Tx, m *models.SystemMovement) error {
	m.ID = int64(5000 + len(r.movements))
	r.movements = append(r.movements, m)
	return nil
}

func (r *fakeSystemRepo) SumByMonth(accountID int64, year, month int) (decimal.Decimal, decimal.Decimal, error) {
	inflows, outflows := decimal.Zero, decimal.Zero
	for _, m := range r.movements {
		if m.AccountID != accountID || m.Date.Year() != year || int(m.Date.Month()) != month {
			continue
		}
		if m.Amount.IsPositive() {
			inflows = inflows.Add(m.Amount)
		} else {
			outflows = outflows.Add(m.Amount.Abs())
		}
	}
	return inflows, outflows, nil
}

type fakeMatchRepo struct {
	matches map[int64]*models.Match
	nextID  int64
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[int64]*models.Match), nextID: 1}
}

func (r *fakeMatchRepo) GetByPeriod(accountID int64, year, month int) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range r.matches {
		e := m.ExtractMovement
		if e.AccountID == accountID && e.Year == year && e.Month == month {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) GetByExtractID(extractID int64) (*models.Match, error) {
	for _, m := range r.matches {
		if m.ExtractMovement.ID == extractID {
			return m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeMatchRepo) GetBySystemID(systemID int64) (*models.Match, error) {
	for _, m := range r.matches {
		if m.Linked() && m.SystemMovement.ID == systemID {
			return m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeMatchRepo) Save(m *models.Match) (*models.Match, error) {
	if existing, err := r.GetByExtractID(m.ExtractMovement.ID); err == nil {
		m.ID = existing.ID
	} else {
		m.ID = r.nextID
		r.nextID++
	}
	stored := *m
	r.matches[m.ID] = &stored
	return &stored, nil
}

func (r *fakeMatchRepo) Delete(id int64) error {
	if _, ok := r.matches[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.matches, id)
	return nil
}

func (r *fakeMatchRepo) DeleteByExtractID(extractID int64) error {
	for id, m := range r.matches {
		if m.ExtractMovement.ID == extractID {
			delete(r.matches, id)
			return nil
		}
	}
	return models.ErrNotFound
}

type fakeConfigRepo struct {
	cfg *models.MatchingConfiguration
}

func (r *fakeConfigRepo) GetActive() (*models.MatchingConfiguration, error) {
	if r.cfg == nil {
		return nil, models.ErrNotFound
	}
	return r.cfg, nil
}

func (r *fakeConfigRepo) Update(cfg *models.MatchingConfiguration) (*models.MatchingConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r.cfg = cfg
	return cfg, nil
}

type fakeAliasRepo struct {
	aliases []models.Alias
}

func (r *fakeAliasRepo) GetByAccount(accountID int64) ([]models.Alias, error) {
	var out []models.Alias
	for _, a := range r.aliases {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAliasRepo) GetByID(id int64) (*models.Alias, error) {
	for i := range r.aliases {
		if r.aliases[i].ID == id {
			return &r.aliases[i], nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeAliasRepo) Create(a *models.Alias) (*models.Alias, error) {
	a.ID = int64(len(r.aliases) + 1)
	r.aliases = append(r.aliases, *a)
	return a, nil
}

func (r *fakeAliasRepo) Update(a *models.Alias) (*models.Alias, error) {
	for i := range r.aliases {
		if r.aliases[i].ID == a.ID {
			r.aliases[i] = *a
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeAliasRepo) Delete(id int64) error {
	for i := range r.aliases {
		if r.aliases[i].ID == id {
			r.aliases = append(r.aliases[:i], r.aliases[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

type fakeAccountRepo struct {
	accounts map[int64]*models.Account
}

func (r *fakeAccountRepo) GetByID(id int64) (*models.Account, error) {
	if a, ok := r.accounts[id]; ok {
		return a, nil
	}
	return nil, models.ErrNotFound
}

type periodKey struct {
	accountID   int64
	year, month int
}

type fakePeriodRepo struct {
	periods map[periodKey]*models.ReconciliationPeriod
	nextID  int64
}

func newFakePeriodRepo() *fakePeriodRepo {
	return &fakePeriodRepo{periods: make(map[periodKey]*models.ReconciliationPeriod), nextID: 1}
}

// refreshDerived mimics the generated balance_difference column.
func refreshDerived(p *models.ReconciliationPeriod) {
	p.BalanceDifference = decimal.NullDecimal{
		Decimal: p.ExtractClosingBalance.Sub(p.SystemClosingBalance),
		Valid:   true,
	}
}

func (r *fakePeriodRepo) GetByPeriod(accountID int64, year, month int) (*models.ReconciliationPeriod, error) {
	if p, ok := r.periods[periodKey{accountID, year, month}]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (r *fakePeriodRepo) Upsert(p *models.ReconciliationPeriod) (*models.ReconciliationPeriod, error) {
	key := periodKey{p.AccountID, p.Year, p.Month}
	stored, ok := r.periods[key]
	if !ok {
		copied := *p
		copied.ID = r.nextID
		r.nextID++
		refreshDerived(&copied)
		r.periods[key] = &copied
		return r.GetByPeriod(p.AccountID, p.Year, p.Month)
	}
	stored.ClosingDate = p.ClosingDate
	stored.ExtractOpeningBalance = p.ExtractOpeningBalance
	stored.ExtractInflows = p.ExtractInflows
	stored.ExtractOutflows = p.ExtractOutflows
	stored.ExtractClosingBalance = p.ExtractClosingBalance
	stored.ExtraData = p.ExtraData
	stored.State = p.State
	refreshDerived(stored)
	return r.GetByPeriod(p.AccountID, p.Year, p.Month)
}

func (r *fakePeriodRepo) UpdateExtractSide(id int64, opening, inflows, outflows, closing decimal.Decimal) error {
	for _, p := range r.periods {
		if p.ID == id {
			p.ExtractOpeningBalance = opening
			p.ExtractInflows = inflows
			p.ExtractOutflows = outflows
			p.ExtractClosingBalance = closing
			refreshDerived(p)
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *fakePeriodRepo) UpdateSystemSide(accountID int64, year, month int, inflows, outflows decimal.Decimal) error {
	p, ok := r.periods[periodKey{accountID, year, month}]
	if !ok {
		return nil
	}
	p.SystemInflows = inflows
	p.SystemOutflows = outflows
	p.SystemClosingBalance = p.ExtractOpeningBalance.Add(inflows).Sub(outflows)
	refreshDerived(p)
	return nil
}

type fakeCurrencyRepo struct {
	currencies []models.Currency
	calls      int
}

func (r *fakeCurrencyRepo) GetAll() ([]models.Currency, error) {
	r.calls++
	return r.currencies, nil
}
