package repositories

import (
	"database/sql"
	"errors"

	"conciliacion-service/internal/models"
)

type ConfigRepository interface {
	GetActive() (*models.MatchingConfiguration, error)
	Update(cfg *models.MatchingConfiguration) (*models.MatchingConfiguration, error)
}

type configRepository struct {
	db *sql.DB
}

func NewConfigRepository(db *sql.DB) ConfigRepository {
	return &configRepository{db: db}
}

func (r *configRepository) GetActive() (*models.MatchingConfiguration, error) {
	cfg := &models.MatchingConfiguration{}
	query := `
		SELECT id, tolerance_amount, min_description_similarity,
		       weight_date, weight_amount, weight_description,
		       min_score_exact, min_score_probable, active,
		       created_at, updated_at
		FROM matching_configurations
		WHERE active = TRUE
		ORDER BY id
		LIMIT 1
	`
	err := r.db.QueryRow(query).Scan(
		&cfg.ID,
		&cfg.ToleranceAmount,
		&cfg.MinDescriptionSimilarity,
		&cfg.WeightDate,
		&cfg.WeightAmount,
		&cfg.WeightDescription,
		&cfg.MinScoreExact,
		&cfg.MinScoreProbable,
		&cfg.Active,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *configRepository) Update(cfg *models.MatchingConfiguration) (*models.MatchingConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	query := `
		UPDATE matching_configurations
		SET tolerance_amount = ?,
		    min_description_similarity = ?,
		    weight_date = ?,
		    weight_amount = ?,
		    weight_description = ?,
		    min_score_exact = ?,
		    min_score_probable = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		cfg.ToleranceAmount,
		cfg.MinDescriptionSimilarity,
		cfg.WeightDate,
		cfg.WeightAmount,
		cfg.WeightDescription,
		cfg.MinScoreExact,
		cfg.MinScoreProbable,
		cfg.ID,
	)
	if err != nil {
		return nil, err
	}
	if _, err := result.RowsAffected(); err != nil {
		return nil, err
	}
	return r.GetActive()
}
