package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCacheWithClock[string, int](func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheZeroTTLDisablesCaching(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestPricingRuleCacheKeyIsCaseInsensitive(t *testing.T) {
	c := NewPricingRuleCache()
	rule := &pricingdomain.PricingRule{
		ID:              7,
		Provider:        "openai",
		ModelName:       "gpt-4o",
		InputTokenPrice: decimal.RequireFromString("0.5"),
	}

	require.True(t, c.Set("OpenAI", " GPT-4o ", 0, rule, time.Minute))

	got, ok := c.Get("openai", "gpt-4o")
	require.True(t, ok)
	assert.Equal(t, rule.ID, got.ID)

	got.ModelName = "mutated"
	again, _ := c.Get("openai", "gpt-4o")
	assert.Equal(t, "gpt-4o", again.ModelName)

	c.Invalidate("OPENAI", "gpt-4o")
	_, ok = c.Get("openai", "gpt-4o")
	assert.False(t, ok)
}

func TestPricingRuleCacheDropsWritesFromBeforeInvalidate(t *testing.T) {
	c := NewPricingRuleCache()
	stale := &pricingdomain.PricingRule{ID: 1, Provider: "openai", ModelName: "gpt-4o"}
	fresh := &pricingdomain.PricingRule{ID: 2, Provider: "openai", ModelName: "gpt-4o"}

	gen := c.Generation("openai", "gpt-4o")
	// A rule change lands while the loader is still reading.
	c.Invalidate("openai", "gpt-4o")

	assert.False(t, c.Set("openai", "gpt-4o", gen, stale, time.Minute))
	_, ok := c.Get("openai", "gpt-4o")
	assert.False(t, ok)

	next := c.Generation("OpenAI", "GPT-4o")
	assert.Equal(t, gen+1, next)
	require.True(t, c.Set("openai", "gpt-4o", next, fresh, time.Minute))
	got, ok := c.Get("openai", "gpt-4o")
	require.True(t, ok)
	assert.Equal(t, fresh.ID, got.ID)

	// Other keys keep their own generation.
	assert.Zero(t, c.Generation("anthropic", "claude"))
}
