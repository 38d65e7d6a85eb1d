package services

import (
	"time"

	"conciliacion-service/internal/models"
	"conciliacion-service/internal/repositories"
)

// DateRangeResolver computes the system-side date window for a period.
// System movements are compared only against the span the statement
// actually covers, so entries dated inside the calendar month but
// outside the statement's cut are excluded from matching candidates.
type DateRangeResolver struct {
	extractRepo repositories.ExtractRepository
}

func NewDateRangeResolver(extractRepo repositories.ExtractRepository) *DateRangeResolver {
	return &DateRangeResolver{extractRepo: extractRepo}
}

// Resolve returns [min, max] of the period's extract movement dates,
// or the full calendar month when the period has no extract movements.
func (r *DateRangeResolver) Resolve(accountID int64, year, month int) (time.Time, time.Time, error) {
	if err := ValidatePeriodKey(year, month); err != nil {
		return time.Time{}, time.Time{}, err
	}
	movements, err := r.extractRepo.GetByPeriod(accountID, year, month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end := SpanOf(movements, year, month)
	return start, end, nil
}

// SpanOf computes the window from an already loaded movement set.
func SpanOf(movements []*models.ExtractMovement, year, month int) (time.Time, time.Time) {
	if len(movements) == 0 {
		return MonthBounds(year, month)
	}
	start := movements[0].Date
	end := movements[0].Date
	for _, m := range movements[1:] {
		if m.Date.Before(start) {
			start = m.Date
		}
		if m.Date.After(end) {
			end = m.Date
		}
	}
	return start, end
}

// MonthBounds returns the first and last day of a calendar month.
func MonthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// ValidatePeriodKey rejects malformed (year, month) keys.
func ValidatePeriodKey(year, month int) error {
	if month < 1 || month > 12 {
		return models.NewValidationError("month must be between 1 and 12, got %d", month)
	}
	if year < 1900 || year > 3000 {
		return models.NewValidationError("year %d is out of range", year)
	}
	return nil
}
