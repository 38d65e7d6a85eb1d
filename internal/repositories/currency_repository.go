package repositories

import (
	"database/sql"

	"conciliacion-service/internal/models"
)

type CurrencyRepository interface {
	GetAll() ([]models.Currency, error)
}

type currencyRepository struct {
	db *sql.DB
}

func NewCurrencyRepository(db *sql.DB) CurrencyRepository {
	return &currencyRepository{db: db}
}

func (r *currencyRepository) GetAll() ([]models.Currency, error) {
	rows, err := r.db.Query(`SELECT id, iso_code, name FROM currencies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var currencies []models.Currency
	for rows.Next() {
		var c models.Currency
		if err := rows.Scan(&c.ID, &c.ISOCode, &c.Name); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}
