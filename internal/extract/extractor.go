package extract

import (
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
)

// RawMovement is one statement line as produced by an extractor,
// before it becomes a persisted ExtractMovement.
type RawMovement struct {
	Date          time.Time
	Description   string
	Reference     string
	Amount        decimal.Decimal
	ForeignAmount decimal.NullDecimal
	ExchangeRate  decimal.NullDecimal
	CurrencyCode  string
	LineNumber    int
	RawText       string
}

// RawSummary carries the statement's own balance block when the source
// format includes one.
type RawSummary struct {
	OpeningBalance decimal.NullDecimal
	InflowsTotal   decimal.NullDecimal
	OutflowsTotal  decimal.NullDecimal
	ClosingBalance decimal.NullDecimal
	ClosingDate    *time.Time
}

// Statement is the full parse result of one uploaded file.
type Statement struct {
	Movements []RawMovement
	Summary   RawSummary
}

// StatementExtractor parses one bank's statement file format. Parse
// returns a ValidationError for content errors so they surface as bad
// requests, not server faults.
type StatementExtractor interface {
	// Name identifies the extractor in logs and registry listings.
	Name() string
	// Supports reports whether the extractor can attempt this payload.
	Supports(filename string, content []byte) bool
	Parse(content []byte) (*Statement, error)
}

type registration struct {
	accountID int64
	kind      string
	extractor StatementExtractor
}

// Registry resolves the extractor for an upload. Resolution order:
// exact account binding, then account-kind binding, then the ordered
// fallback list filtered by Supports.
type Registry struct {
	bindings []registration
	fallback []StatementExtractor
}

func NewRegistry() *Registry {
	return &Registry{}
}

// BindAccount routes every upload for one account to a fixed extractor.
func (r *Registry) BindAccount(accountID int64, e StatementExtractor) {
	r.bindings = append(r.bindings, registration{accountID: accountID, extractor: e})
}

// BindKind routes uploads for an account kind (savings, credit_card,
// fund) to a fixed extractor.
func (r *Registry) BindKind(kind string, e StatementExtractor) {
	r.bindings = append(r.bindings, registration{kind: kind, extractor: e})
}

// Register adds an extractor to the ordered fallback list.
func (r *Registry) Register(e StatementExtractor) {
	r.fallback = append(r.fallback, e)
}

// Resolve picks the extractor for an upload, or a ValidationError when
// nothing can handle it.
func (r *Registry) Resolve(account *models.Account, filename string, content []byte) (StatementExtractor, error) {
	for _, b := range r.bindings {
		if b.accountID != 0 && b.accountID == account.ID {
			return b.extractor, nil
		}
	}
	for _, b := range r.bindings {
		if b.kind != "" && b.kind == account.Kind {
			return b.extractor, nil
		}
	}
	for _, e := range r.fallback {
		if e.Supports(filename, content) {
			return e, nil
		}
	}
	return nil, models.NewValidationError("no extractor available for file %q (account kind %s)", filename, account.Kind)
}
