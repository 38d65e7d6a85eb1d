package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"conciliacion-service/internal/models"
)

type stubExtractor struct {
	name     string
	supports bool
}

func (e *stubExtractor) Name() string                                { return e.name }
func (e *stubExtractor) Supports(filename string, content []byte) bool { return e.supports }
func (e *stubExtractor) Parse(content []byte) (*Statement, error)    { return &Statement{}, nil }

func TestRegistryResolutionOrder(t *testing.T) {
	byAccount := &stubExtractor{name: "by-account", supports: true}
	byKind := &stubExtractor{name: "by-kind", supports: true}
	fallback := &stubExtractor{name: "fallback", supports: true}

	r := NewRegistry()
	r.BindAccount(7, byAccount)
	r.BindKind(models.AccountKindCreditCard, byKind)
	r.Register(fallback)

	creditCard := &models.Account{ID: 7, Kind: models.AccountKindCreditCard}
	got, err := r.Resolve(creditCard, "extracto.txt", nil)
	require.NoError(t, err)
	require.Equal(t, "by-account", got.Name())

	otherCard := &models.Account{ID: 8, Kind: models.AccountKindCreditCard}
	got, err = r.Resolve(otherCard, "extracto.txt", nil)
	require.NoError(t, err)
	require.Equal(t, "by-kind", got.Name())

	savings := &models.Account{ID: 9, Kind: models.AccountKindSavings}
	got, err = r.Resolve(savings, "extracto.txt", nil)
	require.NoError(t, err)
	require.Equal(t, "fallback", got.Name())
}

func TestRegistryFallbackChecksSupports(t *testing.T) {
	first := &stubExtractor{name: "first", supports: false}
	second := &stubExtractor{name: "second", supports: true}

	r := NewRegistry()
	r.Register(first)
	r.Register(second)

	got, err := r.Resolve(&models.Account{ID: 1, Kind: models.AccountKindSavings}, "x.csv", nil)
	require.NoError(t, err)
	require.Equal(t, "second", got.Name())
}

func TestRegistryNoExtractor(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(&models.Account{ID: 1, Kind: models.AccountKindSavings}, "x.bin", nil)
	require.Error(t, err)
	require.True(t, models.IsValidation(err))
}
