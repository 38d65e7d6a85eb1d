package repositories

import (
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
)

type ExtractRepository interface {
	GetByID(id int64) (*models.ExtractMovement, error)
	GetByPeriod(accountID int64, year, month int) ([]*models.ExtractMovement, error)
	ReplacePeriod(tx *sql.Tx, accountID int64, year, month int, movements []*models.ExtractMovement) error
	SumByPeriod(accountID int64, year, month int) (inflows, outflows decimal.Decimal, err error)
}

type extractRepository struct {
	db *sql.DB
}

func NewExtractRepository(db *sql.DB) ExtractRepository {
	return &extractRepository{db: db}
}

const extractColumns = `
	id, account_id, year, month, date, description, reference,
	amount, foreign_amount, exchange_rate, line_number, raw_text, created_at
`

func scanExtract(row interface{ Scan(...interface{}) error }) (*models.ExtractMovement, error) {
	m := &models.ExtractMovement{}
	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.Year,
		&m.Month,
		&m.Date,
		&m.Description,
		&m.Reference,
		&m.Amount,
		&m.ForeignAmount,
		&m.ExchangeRate,
		&m.LineNumber,
		&m.RawText,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *extractRepository) GetByID(id int64) (*models.ExtractMovement, error) {
	query := `SELECT ` + extractColumns + ` FROM extract_movements WHERE id = ?`
	m, err := scanExtract(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *extractRepository) GetByPeriod(accountID int64, year, month int) ([]*models.ExtractMovement, error) {
	query := `
		SELECT ` + extractColumns + `
		FROM extract_movements
		WHERE account_id = ? AND year = ? AND month = ?
		ORDER BY date, line_number, id
	`
	rows, err := r.db.Query(query, accountID, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []*models.ExtractMovement
	for rows.Next() {
		m, err := scanExtract(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ReplacePeriod deletes the period's statement lines and inserts the
// new ones in a single transaction. Matches owned by the deleted lines
// go with them (FK cascade).
func (r *extractRepository) ReplacePeriod(tx *sql.Tx, accountID int64, year, month int, movements []*models.ExtractMovement) error {
	if _, err := tx.Exec(
		`DELETE FROM extract_movements WHERE account_id = ? AND year = ? AND month = ?`,
		accountID, year, month,
	); err != nil {
		return err
	}

	insert := `
		INSERT INTO extract_movements (
			account_id, year, month, date, description, reference,
			amount, foreign_amount, exchange_rate, line_number, raw_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, m := range movements {
		result, err := tx.Exec(insert,
			accountID, year, month,
			m.Date, m.Description, m.Reference,
			m.Amount, m.ForeignAmount, m.ExchangeRate,
			m.LineNumber, m.RawText,
		)
		if err != nil {
			return err
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		m.ID = id
		m.AccountID = accountID
		m.Year = year
		m.Month = month
	}
	return nil
}

// SumByPeriod totals the period's statement lines, combining the local
// and foreign legs so both peso and USD accounts aggregate correctly.
func (r *extractRepository) SumByPeriod(accountID int64, year, month int) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN (amount + COALESCE(foreign_amount, 0)) > 0
				THEN (amount + COALESCE(foreign_amount, 0)) ELSE 0 END), 0) AS inflows,
			COALESCE(SUM(CASE WHEN (amount + COALESCE(foreign_amount, 0)) < 0
				THEN ABS(amount + COALESCE(foreign_amount, 0)) ELSE 0 END), 0) AS outflows
		FROM extract_movements
		WHERE account_id = ? AND year = ? AND month = ?
	`
	var inflows, outflows decimal.Decimal
	err := r.db.QueryRow(query, accountID, year, month).Scan(&inflows, &outflows)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return inflows, outflows, nil
}
