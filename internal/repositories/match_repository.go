package repositories

import (
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
)

type MatchRepository interface {
	GetByPeriod(accountID int64, year, month int) ([]*models.Match, error)
	GetByExtractID(extractID int64) (*models.Match, error)
	GetBySystemID(systemID int64) (*models.Match, error)
	Save(m *models.Match) (*models.Match, error)
	Delete(id int64) error
	DeleteByExtractID(extractID int64) error
}

type matchRepository struct {
	db *sql.DB
}

func NewMatchRepository(db *sql.DB) MatchRepository {
	return &matchRepository{db: db}
}

const matchSelect = `
	SELECT
		m.id, m.state, m.score_total, m.score_date, m.score_amount, m.score_description,
		m.confirmed_by_user, m.created_by, m.notes, m.created_at,
		e.id, e.account_id, e.year, e.month, e.date, e.description, e.reference,
		e.amount, e.foreign_amount, e.exchange_rate, e.line_number, e.raw_text, e.created_at,
		s.id, s.account_id, s.currency_id, s.date, s.description, s.reference,
		s.amount, s.foreign_amount, s.exchange_rate, s.detail, s.created_at
	FROM matches m
	JOIN extract_movements e ON e.id = m.extract_movement_id
	LEFT JOIN system_movements s ON s.id = m.system_movement_id
`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{ExtractMovement: &models.ExtractMovement{}}
	e := m.ExtractMovement

	var createdBy, notes sql.NullString
	var sysID, sysAccountID, sysCurrencyID sql.NullInt64
	var sysDate, sysCreatedAt sql.NullTime
	var sysDescription, sysReference, sysDetail sql.NullString
	var sysAmount, sysForeign, sysRate decimal.NullDecimal

	err := row.Scan(
		&m.ID, &m.State, &m.ScoreTotal, &m.ScoreDate, &m.ScoreAmount, &m.ScoreDescription,
		&m.ConfirmedByUser, &createdBy, &notes, &m.CreatedAt,
		&e.ID, &e.AccountID, &e.Year, &e.Month, &e.Date, &e.Description, &e.Reference,
		&e.Amount, &e.ForeignAmount, &e.ExchangeRate, &e.LineNumber, &e.RawText, &e.CreatedAt,
		&sysID, &sysAccountID, &sysCurrencyID, &sysDate, &sysDescription, &sysReference,
		&sysAmount, &sysForeign, &sysRate, &sysDetail, &sysCreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.CreatedBy = createdBy.String
	m.Notes = notes.String

	if sysID.Valid {
		m.SystemMovement = &models.SystemMovement{
			ID:            sysID.Int64,
			AccountID:     sysAccountID.Int64,
			CurrencyID:    sysCurrencyID.Int64,
			Date:          sysDate.Time,
			Description:   sysDescription.String,
			Reference:     sysReference.String,
			Amount:        sysAmount.Decimal,
			ForeignAmount: sysForeign,
			ExchangeRate:  sysRate,
			Detail:        sysDetail.String,
			CreatedAt:     sysCreatedAt.Time,
		}
	}
	return m, nil
}

func (r *matchRepository) GetByPeriod(accountID int64, year, month int) ([]*models.Match, error) {
	query := matchSelect + `
		WHERE e.account_id = ? AND e.year = ? AND e.month = ?
		ORDER BY e.date, e.id
	`
	rows, err := r.db.Query(query, accountID, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *matchRepository) GetByExtractID(extractID int64) (*models.Match, error) {
	query := matchSelect + ` WHERE m.extract_movement_id = ?`
	m, err := scanMatch(r.db.QueryRow(query, extractID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetBySystemID returns the live match occupying a system movement,
// if any. Ignored and unmatched records do not occupy movements.
func (r *matchRepository) GetBySystemID(systemID int64) (*models.Match, error) {
	query := matchSelect + `
		WHERE m.system_movement_id = ?
		  AND m.state NOT IN ('SIN_MATCH', 'IGNORADO')
		LIMIT 1
	`
	m, err := scanMatch(r.db.QueryRow(query, systemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Save upserts on the extract movement: an extract movement has at
// most one match, so re-linking overwrites the previous record in
// place. The unique index on system_movement_id enforces the
// one-to-one invariant at write time.
func (r *matchRepository) Save(m *models.Match) (*models.Match, error) {
	var systemID sql.NullInt64
	if m.SystemMovement != nil {
		systemID = sql.NullInt64{Int64: m.SystemMovement.ID, Valid: true}
	}
	query := `
		INSERT INTO matches (
			extract_movement_id, system_movement_id, state,
			score_total, score_date, score_amount, score_description,
			confirmed_by_user, created_by, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			system_movement_id = VALUES(system_movement_id),
			state = VALUES(state),
			score_total = VALUES(score_total),
			score_date = VALUES(score_date),
			score_amount = VALUES(score_amount),
			score_description = VALUES(score_description),
			confirmed_by_user = VALUES(confirmed_by_user),
			created_by = VALUES(created_by),
			notes = VALUES(notes)
	`
	_, err := r.db.Exec(query,
		m.ExtractMovement.ID, systemID, m.State,
		m.ScoreTotal, m.ScoreDate, m.ScoreAmount, m.ScoreDescription,
		m.ConfirmedByUser, m.CreatedBy, m.Notes,
	)
	if err != nil {
		return nil, err
	}
	return r.GetByExtractID(m.ExtractMovement.ID)
}

func (r *matchRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM matches WHERE id = ?`, id)
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

func (r *matchRepository) DeleteByExtractID(extractID int64) error {
	result, err := r.db.Exec(`DELETE FROM matches WHERE extract_movement_id = ?`, extractID)
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
