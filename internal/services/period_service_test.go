package services

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"conciliacion-service/internal/models"
)

type periodFixture struct {
	periodRepo  *fakePeriodRepo
	extractRepo *fakeExtractRepo
	systemRepo  *fakeSystemRepo
	service     *PeriodService
}

func newPeriodFixture() *periodFixture {
	f := &periodFixture{
		periodRepo:  newFakePeriodRepo(),
		extractRepo: &fakeExtractRepo{},
		systemRepo:  &fakeSystemRepo{},
	}
	accountRepo := &fakeAccountRepo{accounts: map[int64]*models.Account{
		1: {ID: 1, Name: "Cuenta ahorros", Kind: models.AccountKindSavings},
	}}
	f.service = NewPeriodService(f.periodRepo, f.extractRepo, f.systemRepo, accountRepo, zerolog.Nop())
	return f
}

func (f *periodFixture) addExtract(id int64, d int, amount string) {
	f.extractRepo.movements = append(f.extractRepo.movements, &models.ExtractMovement{
		ID: id, AccountID: 1, Year: 2024, Month: 3,
		Date: day(d), Description: "mov", Amount: dec(amount),
	})
}

func TestGetReturnsDraftForUnknownPeriod(t *testing.T) {
	f := newPeriodFixture()

	period, err := f.service.Get(1, 2024, 3)
	require.NoError(t, err)

	require.Zero(t, period.ID)
	require.Equal(t, models.PeriodStateNuevo, period.State)
	require.True(t, period.ExtractOpeningBalance.IsZero())

	// The draft is not persisted.
	_, err = f.periodRepo.GetByPeriod(1, 2024, 3)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetDraftChainsPreviousClosingBalance(t *testing.T) {
	f := newPeriodFixture()
	_, err := f.periodRepo.Upsert(&models.ReconciliationPeriod{
		AccountID: 1, Year: 2024, Month: 2,
		ExtractClosingBalance: dec("840.50"),
		State:                 models.PeriodStateCuadrado,
	})
	require.NoError(t, err)

	period, err := f.service.Get(1, 2024, 3)
	require.NoError(t, err)

	require.Equal(t, models.PeriodStateNuevo, period.State)
	require.True(t, period.ExtractOpeningBalance.Equal(dec("840.50")))
}

func TestGetDraftDecemberToJanuary(t *testing.T) {
	f := newPeriodFixture()
	_, err := f.periodRepo.Upsert(&models.ReconciliationPeriod{
		AccountID: 1, Year: 2023, Month: 12,
		ExtractClosingBalance: dec("100.00"),
		State:                 models.PeriodStateCuadrado,
	})
	require.NoError(t, err)

	period, err := f.service.Get(1, 2024, 1)
	require.NoError(t, err)
	require.True(t, period.ExtractOpeningBalance.Equal(dec("100.00")))
}

func TestGetUnknownAccount(t *testing.T) {
	f := newPeriodFixture()
	_, err := f.service.Get(99, 2024, 3)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetHealsDriftedAggregates(t *testing.T) {
	f := newPeriodFixture()
	f.addExtract(1, 5, "300.00")
	f.addExtract(2, 10, "-100.00")

	// Stored totals no longer agree with the statement lines.
	_, err := f.periodRepo.Upsert(&models.ReconciliationPeriod{
		AccountID: 1, Year: 2024, Month: 3,
		ExtractOpeningBalance: dec("1000.00"),
		ExtractInflows:        dec("999.00"),
		ExtractOutflows:       dec("0.00"),
		ExtractClosingBalance: dec("1999.00"),
		State:                 models.PeriodStatePendiente,
	})
	require.NoError(t, err)

	period, err := f.service.Get(1, 2024, 3)
	require.NoError(t, err)

	require.True(t, period.ExtractInflows.Equal(dec("300.00")))
	require.True(t, period.ExtractOutflows.Equal(dec("100.00")))
	require.True(t, period.ExtractOpeningBalance.Equal(dec("1000.00")))
	require.True(t, period.ExtractClosingBalance.Equal(dec("1200.00")))
}

func TestGetLeavesConsistentAggregatesAlone(t *testing.T) {
	f := newPeriodFixture()
	f.addExtract(1, 5, "300.00")

	_, err := f.periodRepo.Upsert(&models.ReconciliationPeriod{
		AccountID: 1, Year: 2024, Month: 3,
		ExtractOpeningBalance: dec("50.00"),
		ExtractInflows:        dec("300.00"),
		ExtractOutflows:       dec("0.00"),
		ExtractClosingBalance: dec("350.00"),
		State:                 models.PeriodStatePendiente,
	})
	require.NoError(t, err)

	period, err := f.service.Get(1, 2024, 3)
	require.NoError(t, err)
	require.True(t, period.ExtractClosingBalance.Equal(dec("350.00")))
}

func TestGetForcesZeroOnEmptyPeriod(t *testing.T) {
	f := newPeriodFixture()

	// Period row exists, but every statement line was removed.
	_, err := f.periodRepo.Upsert(&models.ReconciliationPeriod{
		AccountID: 1, Year: 2024, Month: 3,
		ExtractOpeningBalance: dec("1000.00"),
		ExtractInflows:        dec("500.00"),
		ExtractOutflows:       dec("200.00"),
		ExtractClosingBalance: dec("1300.00"),
		State:                 models.PeriodStatePendiente,
	})
	require.NoError(t, err)

	period, err := f.service.Get(1, 2024, 3)
	require.NoError(t, err)

	require.True(t, period.ExtractOpeningBalance.IsZero())
	require.True(t, period.ExtractInflows.IsZero())
	require.True(t, period.ExtractOutflows.IsZero())
	require.True(t, period.ExtractClosingBalance.IsZero())
}

func TestRecomputeRequiresSavedPeriod(t *testing.T) {
	f := newPeriodFixture()
	_, err := f.service.Recompute(1, 2024, 3)
	require.ErrorIs(t, err, models.ErrRecomputeNotAllowed)
}

func TestRecomputeUpdatesSystemSide(t *testing.T) {
	f := newPeriodFixture()
	f.addExtract(1, 5, "300.00")
	f.systemRepo.movements = append(f.systemRepo.movements,
		&models.SystemMovement{ID: 1, AccountID: 1, Date: day(5), Amount: dec("300.00")},
		&models.SystemMovement{ID: 2, AccountID: 1, Date: day(8), Amount: dec("-120.00")},
	)

	_, err := f.periodRepo.Upsert(&models.ReconciliationPeriod{
		AccountID: 1, Year: 2024, Month: 3,
		ExtractOpeningBalance: dec("100.00"),
		ExtractInflows:        dec("300.00"),
		ExtractClosingBalance: dec("400.00"),
		State:                 models.PeriodStatePendiente,
	})
	require.NoError(t, err)

	period, err := f.service.Recompute(1, 2024, 3)
	require.NoError(t, err)

	require.True(t, period.SystemInflows.Equal(dec("300.00")))
	require.True(t, period.SystemOutflows.Equal(dec("120.00")))
	// system closing = extract opening + inflows - outflows
	require.True(t, period.SystemClosingBalance.Equal(dec("280.00")))
	require.True(t, period.BalanceDifference.Valid)
	require.True(t, period.BalanceDifference.Decimal.Equal(dec("120.00")))
}

func TestRecomputeMarksReconciledPeriod(t *testing.T) {
	f := newPeriodFixture()
	f.addExtract(1, 5, "300.00")
	f.systemRepo.movements = append(f.systemRepo.movements,
		&models.SystemMovement{ID: 1, AccountID: 1, Date: day(5), Amount: dec("300.00")},
	)

	_, err := f.periodRepo.Upsert(&models.ReconciliationPeriod{
		AccountID: 1, Year: 2024, Month: 3,
		ExtractOpeningBalance: dec("100.00"),
		ExtractInflows:        dec("300.00"),
		ExtractClosingBalance: dec("400.00"),
		State:                 models.PeriodStatePendiente,
	})
	require.NoError(t, err)

	period, err := f.service.Recompute(1, 2024, 3)
	require.NoError(t, err)

	require.True(t, period.Reconciled())
	require.Equal(t, models.PeriodStateCuadrado, period.State)
}

func TestSaveSetsPendingAndRecomputes(t *testing.T) {
	f := newPeriodFixture()
	f.addExtract(1, 5, "300.00")
	f.systemRepo.movements = append(f.systemRepo.movements,
		&models.SystemMovement{ID: 1, AccountID: 1, Date: day(5), Amount: dec("200.00")},
	)

	period, err := f.service.Save(&models.ReconciliationPeriod{
		AccountID: 1, Year: 2024, Month: 3,
		ExtractOpeningBalance: dec("100.00"),
		ExtractInflows:        dec("300.00"),
		ExtractClosingBalance: dec("400.00"),
	})
	require.NoError(t, err)

	require.Equal(t, models.PeriodStatePendiente, period.State)
	require.True(t, period.SystemInflows.Equal(dec("200.00")))
	require.False(t, period.ClosingDate.IsZero())
}

func TestSaveRejectsBadKey(t *testing.T) {
	f := newPeriodFixture()
	_, err := f.service.Save(&models.ReconciliationPeriod{AccountID: 1, Year: 2024, Month: 13})
	require.Error(t, err)
	require.True(t, models.IsValidation(err))
}
