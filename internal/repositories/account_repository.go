package repositories

import (
	"database/sql"
	"errors"

	"conciliacion-service/internal/models"
)

type AccountRepository interface {
	GetByID(id int64) (*models.Account, error)
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(id int64) (*models.Account, error) {
	a := &models.Account{}
	query := `SELECT id, name, kind, created_at FROM accounts WHERE id = ?`
	err := r.db.QueryRow(query, id).Scan(&a.ID, &a.Name, &a.Kind, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
