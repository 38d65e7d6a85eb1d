package repositories

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
)

type SystemRepository interface {
	GetByID(id int64) (*models.SystemMovement, error)
	GetByIDs(ids []int64) ([]*models.SystemMovement, error)
	SearchByDateRange(accountID int64, from, to time.Time) ([]*models.SystemMovement, error)
	FindExactUnlinked(accountID int64, date time.Time, amount decimal.Decimal, reference, description string) (*models.SystemMovement, error)
	CountSimilar(accountID int64, date time.Time, amount decimal.Decimal, reference, description string) (int, error)
	Insert(tx *sql.Tx, m *models.SystemMovement) error
	SumByMonth(accountID int64, year, month int) (inflows, outflows decimal.Decimal, err error)
}

type systemRepository struct {
	db *sql.DB
}

func NewSystemRepository(db *sql.DB) SystemRepository {
	return &systemRepository{db: db}
}

const systemColumns = `
	id, account_id, currency_id, date, description, reference,
	amount, foreign_amount, exchange_rate, detail, created_at
`

func scanSystem(row interface{ Scan(...interface{}) error }) (*models.SystemMovement, error) {
	m := &models.SystemMovement{}
	var detail sql.NullString
	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.CurrencyID,
		&m.Date,
		&m.Description,
		&m.Reference,
		&m.Amount,
		&m.ForeignAmount,
		&m.ExchangeRate,
		&detail,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Detail = detail.String
	return m, nil
}

func (r *systemRepository) GetByID(id int64) (*models.SystemMovement, error) {
	query := `SELECT ` + systemColumns + ` FROM system_movements WHERE id = ?`
	m, err := scanSystem(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *systemRepository) GetByIDs(ids []int64) ([]*models.SystemMovement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + systemColumns + ` FROM system_movements WHERE id IN (` + placeholders + `)`
	return r.queryMovements(query, args...)
}

func (r *systemRepository) SearchByDateRange(accountID int64, from, to time.Time) ([]*models.SystemMovement, error) {
	query := `
		SELECT ` + systemColumns + `
		FROM system_movements
		WHERE account_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, id
	`
	return r.queryMovements(query, accountID, from, to)
}

func (r *systemRepository) queryMovements(query string, args ...interface{}) ([]*models.SystemMovement, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []*models.SystemMovement
	for rows.Next() {
		m, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// FindExactUnlinked looks for a movement identical to the given
// signature that is not currently occupied by a live match. Used to
// avoid duplicates when legalizing statement lines.
func (r *systemRepository) FindExactUnlinked(accountID int64, date time.Time, amount decimal.Decimal, reference, description string) (*models.SystemMovement, error) {
	query := `
		SELECT ` + systemColumns + `
		FROM system_movements sm
		WHERE sm.account_id = ? AND sm.date = ? AND sm.amount = ?
		  AND sm.reference = ? AND sm.description = ?
		  AND NOT EXISTS (
			SELECT 1 FROM matches m
			WHERE m.system_movement_id = sm.id
			  AND m.state NOT IN ('SIN_MATCH', 'IGNORADO')
		  )
		ORDER BY sm.id
		LIMIT 1
	`
	m, err := scanSystem(r.db.QueryRow(query, accountID, date, amount, reference, description))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CountSimilar counts ledger rows with the same duplicate signature.
// Feeds the multiset-delta rule of the importer.
func (r *systemRepository) CountSimilar(accountID int64, date time.Time, amount decimal.Decimal, reference, description string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM system_movements
		WHERE account_id = ? AND date = ? AND amount = ?
		  AND reference = ? AND description = ?
	`
	var count int
	err := r.db.QueryRow(query, accountID, date, amount, reference, description).Scan(&count)
	return count, err
}

func (r *systemRepository) Insert(tx *sql.Tx, m *models.SystemMovement) error {
	query := `
		INSERT INTO system_movements (
			account_id, currency_id, date, description, reference,
			amount, foreign_amount, exchange_rate, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.Exec(query,
		m.AccountID, m.CurrencyID, m.Date, m.Description, m.Reference,
		m.Amount, m.ForeignAmount, m.ExchangeRate, m.Detail,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// SumByMonth totals signed movement amounts over the calendar month.
// The system side of a period always aggregates the full month,
// independent of the dynamic matching window.
func (r *systemRepository) SumByMonth(accountID int64, year, month int) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0) AS inflows,
			COALESCE(SUM(CASE WHEN amount < 0 THEN ABS(amount) ELSE 0 END), 0) AS outflows
		FROM system_movements
		WHERE account_id = ? AND YEAR(date) = ? AND MONTH(date) = ?
	`
	var inflows, outflows decimal.Decimal
	err := r.db.QueryRow(query, accountID, year, month).Scan(&inflows, &outflows)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return inflows, outflows, nil
}
