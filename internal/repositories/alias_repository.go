package repositories

import (
	"database/sql"
	"errors"

	"conciliacion-service/internal/models"
)

type AliasRepository interface {
	GetByAccount(accountID int64) ([]models.Alias, error)
	GetByID(id int64) (*models.Alias, error)
	Create(a *models.Alias) (*models.Alias, error)
	Update(a *models.Alias) (*models.Alias, error)
	Delete(id int64) error
}

type aliasRepository struct {
	db *sql.DB
}

func NewAliasRepository(db *sql.DB) AliasRepository {
	return &aliasRepository{db: db}
}

func (r *aliasRepository) GetByAccount(accountID int64) ([]models.Alias, error) {
	query := `
		SELECT id, account_id, pattern, replacement, created_at
		FROM matching_aliases
		WHERE account_id = ?
		ORDER BY id
	`
	rows, err := r.db.Query(query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aliases []models.Alias
	for rows.Next() {
		var a models.Alias
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Pattern, &a.Replacement, &a.CreatedAt); err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

func (r *aliasRepository) GetByID(id int64) (*models.Alias, error) {
	a := &models.Alias{}
	query := `
		SELECT id, account_id, pattern, replacement, created_at
		FROM matching_aliases
		WHERE id = ?
	`
	err := r.db.QueryRow(query, id).Scan(&a.ID, &a.AccountID, &a.Pattern, &a.Replacement, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *aliasRepository) Create(a *models.Alias) (*models.Alias, error) {
	if a.Pattern == "" {
		return nil, models.NewValidationError("alias pattern must not be empty")
	}
	result, err := r.db.Exec(
		`INSERT INTO matching_aliases (account_id, pattern, replacement) VALUES (?, ?, ?)`,
		a.AccountID, a.Pattern, a.Replacement,
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(id)
}

func (r *aliasRepository) Update(a *models.Alias) (*models.Alias, error) {
	if a.Pattern == "" {
		return nil, models.NewValidationError("alias pattern must not be empty")
	}
	result, err := r.db.Exec(
		`UPDATE matching_aliases SET pattern = ?, replacement = ? WHERE id = ?`,
		a.Pattern, a.Replacement, a.ID,
	)
	if err != nil {
		return nil, err
	}
	if _, err := result.RowsAffected(); err != nil {
		return nil, err
	}
	return r.GetByID(a.ID)
}

func (r *aliasRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM matching_aliases WHERE id = ?`, id)
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
