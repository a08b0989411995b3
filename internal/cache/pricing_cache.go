package cache

import (
	"strings"
	"sync"
	"time"

	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
)

// PricingRuleCache holds the resolved active rule per (provider, model).
//
// Every Invalidate bumps the key's generation. A loader reads Generation
// before querying the database and passes it to Set; the write is dropped
// when the key was invalidated in between.
type PricingRuleCache interface {
	Get(provider, modelName string) (*pricingdomain.PricingRule, bool)
	Generation(provider, modelName string) uint64
	Set(provider, modelName string, generation uint64, rule *pricingdomain.PricingRule, ttl time.Duration) bool
	Invalidate(provider, modelName string)
}

type pricingRuleCache struct {
	mu          sync.Mutex
	generations map[string]uint64
	rules       Cache[string, pricingdomain.PricingRule]
}

func NewPricingRuleCache() PricingRuleCache {
	return &pricingRuleCache{
		generations: make(map[string]uint64),
		rules:       NewTTLCache[string, pricingdomain.PricingRule](),
	}
}

// Get returns a copy so callers cannot mutate the cached rule.
func (c *pricingRuleCache) Get(provider, modelName string) (*pricingdomain.PricingRule, bool) {
	rule, ok := c.rules.Get(cacheKey(provider, modelName))
	if !ok {
		return nil, false
	}
	return &rule, true
}

func (c *pricingRuleCache) Generation(provider, modelName string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[cacheKey(provider, modelName)]
}

// Set stores the rule only if the key is still at the given generation.
func (c *pricingRuleCache) Set(provider, modelName string, generation uint64, rule *pricingdomain.PricingRule, ttl time.Duration) bool {
	if rule == nil {
		return false
	}
	key := cacheKey(provider, modelName)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] != generation {
		return false
	}
	c.rules.Set(key, *rule, ttl)
	return true
}

func (c *pricingRuleCache) Invalidate(provider, modelName string) {
	key := cacheKey(provider, modelName)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[key]++
	c.rules.Delete(key)
}

func cacheKey(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, part := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(part))
	}
	return strings.Join(normalized, "|")
}
