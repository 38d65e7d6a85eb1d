package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"conciliacion-service/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type matchingFixture struct {
	extractRepo *fakeExtractRepo
	systemRepo  *fakeSystemRepo
	matchRepo   *fakeMatchRepo
	accountRepo *fakeAccountRepo
	service     *MatchingService
}

func newMatchingFixture(kind string) *matchingFixture {
	f := &matchingFixture{
		extractRepo: &fakeExtractRepo{},
		systemRepo:  &fakeSystemRepo{},
		matchRepo:   newFakeMatchRepo(),
		accountRepo: &fakeAccountRepo{accounts: map[int64]*models.Account{
			1: {ID: 1, Name: "Cuenta de prueba", Kind: kind},
		}},
	}
	configRepo := &fakeConfigRepo{cfg: &models.MatchingConfiguration{
		ToleranceAmount:          dec("0.01"),
		MinDescriptionSimilarity: 0.5,
		WeightDate:               0.3,
		WeightAmount:             0.4,
		WeightDescription:        0.3,
		MinScoreExact:            0.9,
		MinScoreProbable:         0.6,
		Active:                   true,
	}}
	log := zerolog.Nop()
	resolver := NewDateRangeResolver(f.extractRepo)
	guard := NewIntegrityGuard(f.matchRepo, log)
	f.service = NewMatchingService(
		nil, f.extractRepo, f.systemRepo, f.matchRepo, configRepo,
		&fakeAliasRepo{}, f.accountRepo, resolver, guard, log,
	)
	return f
}

func (f *matchingFixture) addExtract(id int64, d int, description, amount string) *models.ExtractMovement {
	m := &models.ExtractMovement{
		ID: id, AccountID: 1, Year: 2024, Month: 3,
		Date: day(d), Description: description, Amount: dec(amount),
	}
	f.extractRepo.movements = append(f.extractRepo.movements, m)
	return m
}

func (f *matchingFixture) addSystem(id int64, d int, description, amount string) *models.SystemMovement {
	m := &models.SystemMovement{
		ID: id, AccountID: 1, CurrencyID: 1,
		Date: day(d), Description: description, Amount: dec(amount),
	}
	f.systemRepo.movements = append(f.systemRepo.movements, m)
	return m
}

func TestRunMatchesAndPersists(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	f.addExtract(1, 10, "PAGO NOMINA", "-500.00")
	f.addExtract(2, 12, "COMPRA RARA XYZ", "-77.77")
	f.addSystem(20, 10, "pago nomina", "-500.00")

	result, err := f.service.Run(1, 2024, 3)
	require.NoError(t, err)

	require.Equal(t, 2, result.Stats.TotalExtract)
	require.Equal(t, 1, result.Stats.TotalSystem)
	require.Equal(t, 1, result.Stats.Exact)
	require.Equal(t, 1, result.Stats.Unmatched)

	// Only the EXACTO match was persisted; the SIN_MATCH record is
	// computed fresh on every run.
	require.Len(t, f.matchRepo.matches, 1)
	persisted, err := f.matchRepo.GetByExtractID(1)
	require.NoError(t, err)
	require.Equal(t, models.StateExacto, persisted.State)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	f.addExtract(1, 10, "PAGO NOMINA", "-500.00")
	f.addSystem(20, 10, "pago nomina", "-500.00")

	first, err := f.service.Run(1, 2024, 3)
	require.NoError(t, err)
	firstID := first.Matches[0].ID

	second, err := f.service.Run(1, 2024, 3)
	require.NoError(t, err)

	require.Len(t, second.Matches, 1)
	require.Equal(t, firstID, second.Matches[0].ID)
	require.Len(t, f.matchRepo.matches, 1)
}

func TestRunSkipsOccupiedSystemMovements(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	ext1 := f.addExtract(1, 10, "PAGO PSE", "-100.00")
	f.addExtract(2, 10, "PAGO PSE", "-100.00")
	sys := f.addSystem(20, 10, "pago pse", "-100.00")

	_, err := f.matchRepo.Save(&models.Match{
		ExtractMovement: ext1, SystemMovement: sys,
		State: models.StateManual, ConfirmedByUser: true,
	})
	require.NoError(t, err)

	result, err := f.service.Run(1, 2024, 3)
	require.NoError(t, err)

	// The occupied system movement is not offered to extract 2.
	byExtract := make(map[int64]*models.Match)
	for _, m := range result.Matches {
		byExtract[m.ExtractMovement.ID] = m
	}
	require.Equal(t, models.StateManual, byExtract[1].State)
	require.Equal(t, models.StateSinMatch, byExtract[2].State)
}

func TestRunDeletesOrphans(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	ext := f.addExtract(1, 10, "PAGO PSE", "-100.00")
	f.addSystem(20, 10, "pago pse", "-100.00")

	// A persisted EXACTO whose system movement reference was lost.
	_, err := f.matchRepo.Save(&models.Match{
		ExtractMovement: ext, State: models.StateExacto, ScoreTotal: 1,
	})
	require.NoError(t, err)

	result, err := f.service.Run(1, 2024, 3)
	require.NoError(t, err)

	// The orphan was deleted and its extract movement re-matched.
	require.Len(t, result.Matches, 1)
	require.Equal(t, models.StateExacto, result.Matches[0].State)
	require.NotNil(t, result.Matches[0].SystemMovement)
	require.Equal(t, int64(20), result.Matches[0].SystemMovement.ID)
}

func TestRunCreditCardRepairsDuplicates(t *testing.T) {
	f := newMatchingFixture(models.AccountKindCreditCard)
	ext1 := f.addExtract(1, 10, "pago pse", "-100.00")
	ext2 := f.addExtract(2, 10, "pago pse", "-100.00")
	sys := f.addSystem(20, 10, "pago pse", "-100.00")

	// Two persisted matches occupy the same system movement with
	// equal scores; the pre-run repair deletes both.
	for _, ext := range []*models.ExtractMovement{ext1, ext2} {
		_, err := f.matchRepo.Save(&models.Match{
			ExtractMovement: ext, SystemMovement: sys,
			State: models.StateProbable, ScoreTotal: 0.7,
		})
		require.NoError(t, err)
	}

	result, err := f.service.Run(1, 2024, 3)
	require.NoError(t, err)

	// After repair the system movement holds exactly one live match.
	linked := 0
	for _, m := range result.Matches {
		if m.Linked() {
			linked++
			require.Equal(t, int64(20), m.SystemMovement.ID)
		}
	}
	require.Equal(t, 1, linked)
	violations, err := f.service.guard.DetectOneToMany(1, 2024, 3)
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestLinkManual(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	f.addExtract(1, 10, "PAGO PSE", "-100.00")
	f.addSystem(20, 12, "otra cosa", "-95.00")

	match, err := f.service.LinkManual(1, 20, "analista", "revisado a mano")
	require.NoError(t, err)

	require.Equal(t, models.StateExacto, match.State)
	require.True(t, match.ConfirmedByUser)
	require.Equal(t, "analista", match.CreatedBy)
	require.Equal(t, int64(20), match.SystemMovement.ID)
}

func TestLinkManualConflict(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	f.addExtract(1, 10, "PAGO PSE", "-100.00")
	f.addExtract(2, 10, "PAGO PSE", "-100.00")
	f.addSystem(20, 10, "pago pse", "-100.00")

	_, err := f.service.LinkManual(1, 20, "analista", "")
	require.NoError(t, err)

	_, err = f.service.LinkManual(2, 20, "analista", "")
	require.Error(t, err)
	require.True(t, models.IsConflict(err))

	// Re-linking the same pair is not a conflict.
	_, err = f.service.LinkManual(1, 20, "analista", "otra vez")
	require.NoError(t, err)
}

func TestLinkManualNotFound(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	f.addExtract(1, 10, "PAGO PSE", "-100.00")

	_, err := f.service.LinkManual(1, 999, "analista", "")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.service.LinkManual(999, 1, "analista", "")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestUnlink(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	f.addExtract(1, 10, "PAGO PSE", "-100.00")
	f.addSystem(20, 10, "pago pse", "-100.00")

	_, err := f.service.LinkManual(1, 20, "analista", "")
	require.NoError(t, err)

	require.NoError(t, f.service.Unlink(1))
	require.ErrorIs(t, f.service.Unlink(1), models.ErrNotFound)

	// The freed system movement can be linked again.
	f.addExtract(2, 10, "PAGO PSE", "-100.00")
	_, err = f.service.LinkManual(2, 20, "analista", "")
	require.NoError(t, err)
}

func TestIgnore(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	f.addExtract(1, 10, "CUOTA MANEJO", "-12.00")

	match, err := f.service.Ignore(1, "analista", "cobro duplicado del banco")
	require.NoError(t, err)

	require.Equal(t, models.StateIgnorado, match.State)
	require.Nil(t, match.SystemMovement)
	require.Zero(t, match.ScoreTotal)

	// An ignored extract movement is not re-matched by later runs.
	f.addSystem(20, 10, "cuota manejo", "-12.00")
	result, err := f.service.Run(1, 2024, 3)
	require.NoError(t, err)
	require.Equal(t, 1, result.Stats.Ignored)
	require.Equal(t, 0, result.Stats.Exact)
}

func TestSystemUniverseIncludesLinkedOutsideWindow(t *testing.T) {
	f := newMatchingFixture(models.AccountKindSavings)
	f.addExtract(1, 10, "PAGO PSE", "-100.00")
	f.addSystem(20, 10, "pago pse", "-100.00")

	// A cheque cleared in another month, linked manually.
	outside := &models.SystemMovement{
		ID: 30, AccountID: 1, CurrencyID: 1,
		Date:        time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC),
		Description: "cheque 1234", Amount: dec("-250.00"),
	}
	f.systemRepo.movements = append(f.systemRepo.movements, outside)
	_, err := f.service.LinkManual(1, 30, "analista", "cheque girado en marzo")
	require.NoError(t, err)

	movements, err := f.service.SystemUniverse(1, 2024, 3)
	require.NoError(t, err)

	ids := make([]int64, 0, len(movements))
	for _, m := range movements {
		ids = append(ids, m.ID)
	}
	require.Contains(t, ids, int64(20))
	require.Contains(t, ids, int64(30))
}
