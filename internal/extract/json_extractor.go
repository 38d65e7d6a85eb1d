package extract

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
)

// jsonStatement is the normalized interchange format produced by the
// upstream statement converters. Dates arrive as YYYY-MM-DD.
type jsonStatement struct {
	Summary struct {
		OpeningBalance *decimal.Decimal `json:"opening_balance"`
		InflowsTotal   *decimal.Decimal `json:"inflows_total"`
		OutflowsTotal  *decimal.Decimal `json:"outflows_total"`
		ClosingBalance *decimal.Decimal `json:"closing_balance"`
		ClosingDate    string           `json:"closing_date"`
	} `json:"summary"`
	Movements []struct {
		Date          string           `json:"date"`
		Description   string           `json:"description"`
		Reference     string           `json:"reference"`
		Amount        decimal.Decimal  `json:"amount"`
		ForeignAmount *decimal.Decimal `json:"foreign_amount"`
		ExchangeRate  *decimal.Decimal `json:"exchange_rate"`
		CurrencyCode  string           `json:"currency_code"`
		RawText       string           `json:"raw_text"`
	} `json:"movements"`
}

// JSONExtractor parses the normalized JSON statement format.
type JSONExtractor struct{}

func NewJSONExtractor() *JSONExtractor {
	return &JSONExtractor{}
}

func (e *JSONExtractor) Name() string { return "json" }

func (e *JSONExtractor) Supports(filename string, content []byte) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".json") {
		return true
	}
	trimmed := bytes.TrimSpace(content)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (e *JSONExtractor) Parse(content []byte) (*Statement, error) {
	var raw jsonStatement
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, models.NewValidationError("malformed statement JSON: %v", err)
	}
	if len(raw.Movements) == 0 {
		return nil, models.NewValidationError("statement has no movements")
	}

	st := &Statement{}
	st.Summary.OpeningBalance = nullDec(raw.Summary.OpeningBalance)
	st.Summary.InflowsTotal = nullDec(raw.Summary.InflowsTotal)
	st.Summary.OutflowsTotal = nullDec(raw.Summary.OutflowsTotal)
	st.Summary.ClosingBalance = nullDec(raw.Summary.ClosingBalance)
	if raw.Summary.ClosingDate != "" {
		d, err := time.Parse("2006-01-02", raw.Summary.ClosingDate)
		if err != nil {
			return nil, models.NewValidationError("invalid closing_date %q", raw.Summary.ClosingDate)
		}
		st.Summary.ClosingDate = &d
	}

	for i, m := range raw.Movements {
		if m.Description == "" {
			return nil, models.NewValidationError("movement %d has no description", i+1)
		}
		date, err := time.Parse("2006-01-02", m.Date)
		if err != nil {
			return nil, models.NewValidationError("movement %d has invalid date %q", i+1, m.Date)
		}
		st.Movements = append(st.Movements, RawMovement{
			Date:          date,
			Description:   m.Description,
			Reference:     m.Reference,
			Amount:        m.Amount,
			ForeignAmount: nullDec(m.ForeignAmount),
			ExchangeRate:  nullDec(m.ExchangeRate),
			CurrencyCode:  m.CurrencyCode,
			LineNumber:    i + 1,
			RawText:       m.RawText,
		})
	}
	return st, nil
}

func nullDec(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
