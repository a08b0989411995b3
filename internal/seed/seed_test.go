package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/creditledger/internal/cache"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/creditledger/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/creditledger/internal/pricing/service"
	"github.com/smallbiznis/creditledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sample = `
[[rule]]
provider = "openai"
model_name = "gpt-4o"
input_token_price = "0.005"
output_token_price = "0.015"

[[rule]]
provider = "anthropic"
model_name = "claude-3-5-sonnet"
input_token_price = "0.003"
output_token_price = "0.015"
base_price = "0.0001"
`

func newPricing(t *testing.T) pricingdomain.Service {
	t.Helper()
	return pricingservice.New(pricingservice.Params{
		DB:     testutil.OpenDB(t),
		Log:    zap.NewNop(),
		GenID:  testutil.MustNode(t),
		Repo:   pricingrepo.Provide(),
		Cache:  cache.NewPricingRuleCache(),
		Config: testutil.BillingConfig(),
		Clock:  testutil.Clock(),
	})
}

func TestParsePricing(t *testing.T) {
	file, err := ParsePricing([]byte(sample))
	require.NoError(t, err)
	require.Len(t, file.Rules, 2)
	assert.Equal(t, "gpt-4o", file.Rules[0].ModelName)
	assert.Nil(t, file.Rules[0].BasePrice)
	require.NotNil(t, file.Rules[1].BasePrice)
	assert.Equal(t, "0.0001", *file.Rules[1].BasePrice)

	_, err = ParsePricing([]byte("[[rule]\nprovider ="))
	assert.Error(t, err)
}

func TestApplyPricingIsIdempotent(t *testing.T) {
	svc := newPricing(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "pricing.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	file, err := LoadPricingFile(path)
	require.NoError(t, err)

	first, err := ApplyPricing(ctx, svc, file)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 2}, first)

	second, err := ApplyPricing(ctx, svc, file)
	require.NoError(t, err)
	assert.Equal(t, Result{Unchanged: 2}, second)

	file.Rules[0].InputTokenPrice = "0.006"
	third, err := ApplyPricing(ctx, svc, file)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Unchanged: 1}, third)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestApplyPricingStopsOnInvalidRule(t *testing.T) {
	svc := newPricing(t)
	file := PricingFile{Rules: []pricingdomain.CreateRuleRequest{
		{Provider: "openai", ModelName: "gpt-4o", InputTokenPrice: "-1", OutputTokenPrice: "0"},
	}}
	_, err := ApplyPricing(context.Background(), svc, file)
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)
}

func TestLoadPricingFileMissing(t *testing.T) {
	_, err := LoadPricingFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
