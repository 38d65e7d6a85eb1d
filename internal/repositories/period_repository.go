package repositories

import (
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
)

type PeriodRepository interface {
	GetByPeriod(accountID int64, year, month int) (*models.ReconciliationPeriod, error)
	Upsert(p *models.ReconciliationPeriod) (*models.ReconciliationPeriod, error)
	UpdateExtractSide(id int64, opening, inflows, outflows, closing decimal.Decimal) error
	UpdateSystemSide(accountID int64, year, month int, inflows, outflows decimal.Decimal) error
}

type periodRepository struct {
	db *sql.DB
}

func NewPeriodRepository(db *sql.DB) PeriodRepository {
	return &periodRepository{db: db}
}

const periodSelect = `
	SELECT
		p.id, p.account_id, p.year, p.month, p.closing_date,
		p.extract_opening_balance, p.extract_inflows, p.extract_outflows, p.extract_closing_balance,
		p.system_inflows, p.system_outflows, p.system_closing_balance,
		p.balance_difference, p.extra_data, p.state, p.updated_at,
		a.name
	FROM reconciliation_periods p
	JOIN accounts a ON a.id = p.account_id
`

func scanPeriod(row interface{ Scan(...interface{}) error }) (*models.ReconciliationPeriod, error) {
	p := &models.ReconciliationPeriod{}
	var extraData sql.NullString
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Year, &p.Month, &p.ClosingDate,
		&p.ExtractOpeningBalance, &p.ExtractInflows, &p.ExtractOutflows, &p.ExtractClosingBalance,
		&p.SystemInflows, &p.SystemOutflows, &p.SystemClosingBalance,
		&p.BalanceDifference, &extraData, &p.State, &p.UpdatedAt,
		&p.AccountName,
	)
	if err != nil {
		return nil, err
	}
	if extraData.Valid {
		p.ExtraData = []byte(extraData.String)
	}
	return p, nil
}

func (r *periodRepository) GetByPeriod(accountID int64, year, month int) (*models.ReconciliationPeriod, error) {
	query := periodSelect + ` WHERE p.account_id = ? AND p.year = ? AND p.month = ?`
	p, err := scanPeriod(r.db.QueryRow(query, accountID, year, month))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert writes the extracto side of the period. balance_difference is
// a generated column; the system side is preserved on update.
func (r *periodRepository) Upsert(p *models.ReconciliationPeriod) (*models.ReconciliationPeriod, error) {
	extraData := []byte("{}")
	if len(p.ExtraData) > 0 {
		extraData = p.ExtraData
	}
	query := `
		INSERT INTO reconciliation_periods (
			account_id, year, month, closing_date,
			extract_opening_balance, extract_inflows, extract_outflows, extract_closing_balance,
			extra_data, state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			closing_date = VALUES(closing_date),
			extract_opening_balance = VALUES(extract_opening_balance),
			extract_inflows = VALUES(extract_inflows),
			extract_outflows = VALUES(extract_outflows),
			extract_closing_balance = VALUES(extract_closing_balance),
			extra_data = VALUES(extra_data),
			state = VALUES(state)
	`
	_, err := r.db.Exec(query,
		p.AccountID, p.Year, p.Month, p.ClosingDate,
		p.ExtractOpeningBalance, p.ExtractInflows, p.ExtractOutflows, p.ExtractClosingBalance,
		extraData, p.State,
	)
	if err != nil {
		return nil, err
	}
	return r.GetByPeriod(p.AccountID, p.Year, p.Month)
}

// UpdateExtractSide overwrites the stored extracto aggregate. Used by
// the drift self-healing on period reads.
func (r *periodRepository) UpdateExtractSide(id int64, opening, inflows, outflows, closing decimal.Decimal) error {
	query := `
		UPDATE reconciliation_periods
		SET extract_opening_balance = ?,
		    extract_inflows = ?,
		    extract_outflows = ?,
		    extract_closing_balance = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query, opening, inflows, outflows, closing, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateSystemSide stores the recomputed system aggregates; the
// closing balance derives from the extracto opening balance. The
// caller verifies the period row exists first (an unchanged UPDATE
// reports zero affected rows, so that count cannot signal absence).
func (r *periodRepository) UpdateSystemSide(accountID int64, year, month int, inflows, outflows decimal.Decimal) error {
	query := `
		UPDATE reconciliation_periods
		SET system_inflows = ?,
		    system_outflows = ?,
		    system_closing_balance = (extract_opening_balance + ? - ?)
		WHERE account_id = ? AND year = ? AND month = ?
	`
	_, err := r.db.Exec(query, inflows, outflows, inflows, outflows, accountID, year, month)
	return err
}
