package services

import (
	"strings"
	"sync"

	"conciliacion-service/internal/models"
	"conciliacion-service/internal/repositories"
)

// CurrencyCache is a read-through cache over the currencies table.
// Currencies change rarely; the cache reloads itself once on a miss
// before declaring a code unknown.
type CurrencyCache struct {
	repo repositories.CurrencyRepository

	mu     sync.RWMutex
	byCode map[string]int64
	loaded bool
}

func NewCurrencyCache(repo repositories.CurrencyRepository) *CurrencyCache {
	return &CurrencyCache{repo: repo}
}

// Lookup resolves an ISO code to a currency id. An empty code resolves
// to the local currency.
func (c *CurrencyCache) Lookup(isoCode string) (int64, error) {
	code := strings.ToUpper(strings.TrimSpace(isoCode))
	if code == "" {
		return models.LocalCurrencyID, nil
	}

	c.mu.RLock()
	if c.loaded {
		if id, ok := c.byCode[code]; ok {
			c.mu.RUnlock()
			return id, nil
		}
	}
	c.mu.RUnlock()

	if err := c.reload(); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.byCode[code]; ok {
		return id, nil
	}
	return 0, models.NewValidationError("unknown currency code %q", isoCode)
}

// Invalidate drops the cached table; the next Lookup reloads it.
func (c *CurrencyCache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.byCode = nil
	c.mu.Unlock()
}

func (c *CurrencyCache) reload() error {
	currencies, err := c.repo.GetAll()
	if err != nil {
		return err
	}
	byCode := make(map[string]int64, len(currencies))
	for _, cur := range currencies {
		byCode[strings.ToUpper(cur.ISOCode)] = cur.ID
	}
	c.mu.Lock()
	c.byCode = byCode
	c.loaded = true
	c.mu.Unlock()
	return nil
}
