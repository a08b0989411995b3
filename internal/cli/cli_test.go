package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/creditledger/internal/cache"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerrepo "github.com/smallbiznis/creditledger/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/creditledger/internal/ledger/service"
	pricingrepo "github.com/smallbiznis/creditledger/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/creditledger/internal/pricing/service"
	"github.com/smallbiznis/creditledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testOpener(t *testing.T) appOpener {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.MustNode(t)
	cfg := testutil.BillingConfig()
	fakeClock := testutil.Clock()
	log := zap.NewNop()

	a := &app{
		cfg: config.Config{DBType: "sqlite"},
		db:  db,
		ledger: ledgerservice.NewService(ledgerservice.Params{
			DB: db, Log: log, GenID: node, Repo: ledgerrepo.Provide(), Config: cfg, Clock: fakeClock,
		}),
		pricing: pricingservice.New(pricingservice.Params{
			DB: db, Log: log, GenID: node, Repo: pricingrepo.Provide(),
			Cache: cache.NewPricingRuleCache(), Config: cfg, Clock: fakeClock,
		}),
	}
	return func(context.Context) (*app, error) { return a, nil }
}

func execute(t *testing.T, open appOpener, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreditAndBalance(t *testing.T) {
	open := testOpener(t)

	out, err := execute(t, open, "credit", "u1", "12.50")
	require.NoError(t, err)
	assert.Contains(t, out, "u1 balance: 12.5")

	out, err = execute(t, open, "balance", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1\t12.5\n", out)

	out, err = execute(t, open, "balance", "u1", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"balance": "12.5"`)

	_, err = execute(t, open, "credit", "u1", "ten")
	assert.Error(t, err)
}

func TestAdjustRequiresDescription(t *testing.T) {
	open := testOpener(t)

	_, err := execute(t, open, "adjust", "u1", "5")
	require.Error(t, err)

	out, err := execute(t, open, "adjust", "u1", "5", "--description", "goodwill")
	require.NoError(t, err)
	assert.Contains(t, out, "u1 balance: 5")
}

func TestReconcile(t *testing.T) {
	open := testOpener(t)

	_, err := execute(t, open, "credit", "u1", "3")
	require.NoError(t, err)

	out, err := execute(t, open, "reconcile", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "drift: 0")
	assert.Contains(t, out, "transactions: 1")

	_, err = execute(t, open, "reconcile", "ghost")
	assert.Error(t, err)
}

func TestPricingSeedAndList(t *testing.T) {
	open := testOpener(t)
	path := filepath.Join(t.TempDir(), "pricing.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[rule]]
provider = "openai"
model_name = "gpt-4o"
input_token_price = "0.0014"
output_token_price = "0.0028"
`), 0o600))

	out, err := execute(t, open, "pricing", "seed", path)
	require.NoError(t, err)
	assert.Equal(t, "created 1, unchanged 0\n", out)

	out, err = execute(t, open, "pricing", "seed", path)
	require.NoError(t, err)
	assert.Equal(t, "created 0, unchanged 1\n", out)

	out, err = execute(t, open, "pricing", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "gpt-4o")
	assert.Contains(t, out, "0.0028")
}

func TestMigrateIsIdempotent(t *testing.T) {
	open := testOpener(t)

	out, err := execute(t, open, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema up to date (sqlite)\n", out)
}
