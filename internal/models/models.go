package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ExtractMovement is one line of a bank statement ("extracto") for a
// period. Rows are immutable once ingested; re-importing a period's
// statement replaces them wholesale.
type ExtractMovement struct {
	ID            int64               `db:"id" json:"id"`
	AccountID     int64               `db:"account_id" json:"account_id"`
	Year          int                 `db:"year" json:"year"`
	Month         int                 `db:"month" json:"month"`
	Date          time.Time           `db:"date" json:"date"`
	Description   string              `db:"description" json:"description"`
	Reference     string              `db:"reference" json:"reference"`
	Amount        decimal.Decimal     `db:"amount" json:"amount"`
	ForeignAmount decimal.NullDecimal `db:"foreign_amount" json:"foreign_amount,omitempty"`
	ExchangeRate  decimal.NullDecimal `db:"exchange_rate" json:"exchange_rate,omitempty"`
	LineNumber    int                 `db:"line_number" json:"line_number"`
	RawText       string              `db:"raw_text" json:"-"`
	CreatedAt     time.Time           `db:"created_at" json:"-"`
}

// SignedAmount combines the local and foreign legs into one signed
// value. Local-currency accounts carry the whole amount in Amount;
// foreign-currency accounts carry it in ForeignAmount with Amount = 0.
func (m *ExtractMovement) SignedAmount() decimal.Decimal {
	total := m.Amount
	if m.ForeignAmount.Valid {
		total = total.Add(m.ForeignAmount.Decimal)
	}
	return total
}

// SystemMovement is one internal ledger entry. Never deleted by the
// reconciliation core.
type SystemMovement struct {
	ID            int64               `db:"id" json:"id"`
	AccountID     int64               `db:"account_id" json:"account_id"`
	CurrencyID    int64               `db:"currency_id" json:"currency_id"`
	Date          time.Time           `db:"date" json:"date"`
	Description   string              `db:"description" json:"description"`
	Reference     string              `db:"reference" json:"reference"`
	Amount        decimal.Decimal     `db:"amount" json:"amount"`
	ForeignAmount decimal.NullDecimal `db:"foreign_amount" json:"foreign_amount,omitempty"`
	ExchangeRate  decimal.NullDecimal `db:"exchange_rate" json:"exchange_rate,omitempty"`
	Detail        string              `db:"detail" json:"detail,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"-"`
}

// Match states.
const (
	StateExacto   = "EXACTO"
	StateProbable = "PROBABLE"
	StateSinMatch = "SIN_MATCH"
	StateIgnorado = "IGNORADO"
	StateManual   = "MANUAL"
)

// Match ("vinculación") pairs an extract movement with at most one
// system movement. SystemMovement is nil only for SIN_MATCH and
// IGNORADO states. At most one non-ignored, non-unmatched match may
// reference a given system movement.
type Match struct {
	ID               int64            `json:"id"`
	ExtractMovement  *ExtractMovement `json:"extract_movement"`
	SystemMovement   *SystemMovement  `json:"system_movement,omitempty"`
	State            string           `json:"state"`
	ScoreTotal       float64          `json:"score_total"`
	ScoreDate        float64          `json:"score_date"`
	ScoreAmount      float64          `json:"score_amount"`
	ScoreDescription float64          `json:"score_description"`
	ConfirmedByUser  bool             `json:"confirmed_by_user"`
	CreatedBy        string           `json:"created_by,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"-"`
}

// RequiresSystemMovement reports whether the match state implies a
// system movement reference. A match in one of these states with no
// system movement is an orphan.
func (m *Match) RequiresSystemMovement() bool {
	switch m.State {
	case StateExacto, StateProbable, StateManual:
		return true
	}
	return false
}

// Linked reports whether the match occupies a system movement for the
// one-to-one invariant.
func (m *Match) Linked() bool {
	return m.SystemMovement != nil && m.State != StateIgnorado && m.State != StateSinMatch
}

// MatchingConfiguration holds the active tunables of the matching
// algorithm. Weights are absolute, not percentages; thresholds are
// compared against the weighted total on the same scale.
type MatchingConfiguration struct {
	ID                       int64           `db:"id" json:"id"`
	ToleranceAmount          decimal.Decimal `db:"tolerance_amount" json:"tolerance_amount"`
	MinDescriptionSimilarity float64         `db:"min_description_similarity" json:"min_description_similarity"`
	WeightDate               float64         `db:"weight_date" json:"weight_date"`
	WeightAmount             float64         `db:"weight_amount" json:"weight_amount"`
	WeightDescription        float64         `db:"weight_description" json:"weight_description"`
	MinScoreExact            float64         `db:"min_score_exact" json:"min_score_exact"`
	MinScoreProbable         float64         `db:"min_score_probable" json:"min_score_probable"`
	Active                   bool            `db:"active" json:"active"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at" json:"updated_at"`
}

// Validate enforces the write-time constraints on the configuration.
func (c *MatchingConfiguration) Validate() error {
	if c.ToleranceAmount.IsNegative() {
		return NewValidationError("tolerance_amount must be non-negative")
	}
	if c.WeightDate < 0 || c.WeightAmount < 0 || c.WeightDescription < 0 {
		return NewValidationError("weights must be non-negative")
	}
	if c.MinDescriptionSimilarity < 0 || c.MinDescriptionSimilarity > 1 {
		return NewValidationError("min_description_similarity must be in [0,1]")
	}
	if c.MinScoreExact < 0 || c.MinScoreExact > 1 {
		return NewValidationError("min_score_exact must be in [0,1]")
	}
	if c.MinScoreProbable < 0 || c.MinScoreProbable > 1 {
		return NewValidationError("min_score_probable must be in [0,1]")
	}
	if c.MinScoreExact < c.MinScoreProbable {
		return NewValidationError("min_score_exact must be >= min_score_probable")
	}
	return nil
}

// WeightedScore computes the composite score from the per-criterion
// scores, clamped to [0, sum of weights].
func (c *MatchingConfiguration) WeightedScore(scoreDate, scoreAmount, scoreDescription float64) float64 {
	total := c.WeightDate*scoreDate + c.WeightAmount*scoreAmount + c.WeightDescription*scoreDescription
	if total < 0 {
		return 0
	}
	if maxTotal := c.WeightDate + c.WeightAmount + c.WeightDescription; total > maxTotal {
		return maxTotal
	}
	return total
}

// Classify maps a composite score to a match state. Threshold values
// themselves classify into the higher bucket.
func (c *MatchingConfiguration) Classify(scoreTotal float64) string {
	switch {
	case scoreTotal >= c.MinScoreExact:
		return StateExacto
	case scoreTotal >= c.MinScoreProbable:
		return StateProbable
	default:
		return StateSinMatch
	}
}

// Alias is an account-scoped description substitution applied before
// similarity scoring, used to collapse bank-specific noise such as
// terminal ids.
type Alias struct {
	ID          int64     `db:"id" json:"id"`
	AccountID   int64     `db:"account_id" json:"account_id"`
	Pattern     string    `db:"pattern" json:"pattern"`
	Replacement string    `db:"replacement" json:"replacement"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ReconciliationPeriod states.
const (
	PeriodStateNuevo     = "NUEVO"
	PeriodStatePendiente = "PENDIENTE"
	PeriodStateCuadrado  = "CUADRADO"
)

// BalanceTolerance is the drift allowed before aggregates are
// considered inconsistent.
var BalanceTolerance = decimal.NewFromFloat(0.01)

// ReconciliationPeriod aggregates one (account, year, month). The
// extracto side is the authoritative input; the system side is derived
// from ledger movements.
type ReconciliationPeriod struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	ClosingDate time.Time `json:"closing_date"`

	ExtractOpeningBalance decimal.Decimal `json:"extract_opening_balance"`
	ExtractInflows        decimal.Decimal `json:"extract_inflows"`
	ExtractOutflows       decimal.Decimal `json:"extract_outflows"`
	ExtractClosingBalance decimal.Decimal `json:"extract_closing_balance"`

	SystemInflows        decimal.Decimal `json:"system_inflows"`
	SystemOutflows       decimal.Decimal `json:"system_outflows"`
	SystemClosingBalance decimal.Decimal `json:"system_closing_balance"`

	BalanceDifference decimal.NullDecimal `json:"balance_difference"`
	ExtraData         json.RawMessage     `json:"extra_data,omitempty"`
	State             string              `json:"state"`
	UpdatedAt         time.Time           `json:"updated_at"`

	AccountName string `json:"account_name,omitempty"`
}

// InternallyConsistent checks the extracto arithmetic:
// opening + inflows - outflows = closing, within tolerance.
func (p *ReconciliationPeriod) InternallyConsistent() bool {
	computed := p.ExtractOpeningBalance.Add(p.ExtractInflows).Sub(p.ExtractOutflows)
	return computed.Sub(p.ExtractClosingBalance).Abs().LessThan(BalanceTolerance)
}

// Reconciled checks the extracto closing balance against the system
// closing balance, within tolerance.
func (p *ReconciliationPeriod) Reconciled() bool {
	if !p.BalanceDifference.Valid {
		return false
	}
	return p.BalanceDifference.Decimal.Abs().LessThan(BalanceTolerance)
}

// Account kinds. Credit-card accounts get the strict one-to-one
// integrity pass before every matching run.
const (
	AccountKindSavings    = "savings"
	AccountKindCreditCard = "credit_card"
	AccountKindFund       = "fund"
)

// Account is an owned bank account under reconciliation.
type Account struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Kind      string    `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// StrictIntegrity reports whether the account's policy requires the
// automatic one-to-many repair before each matching run.
func (a *Account) StrictIntegrity() bool {
	return a.Kind == AccountKindCreditCard
}

// Currency is a ledger currency, resolved by ISO code during import.
type Currency struct {
	ID      int64  `db:"id" json:"id"`
	ISOCode string `db:"iso_code" json:"iso_code"`
	Name    string `db:"name" json:"name"`
}

// LocalCurrencyID is the fallback currency for movements that do not
// carry an ISO code.
const LocalCurrencyID int64 = 1
