package db

import (
	"testing"

	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect(t *testing.T) {
	for _, dbType := range []string{"postgres", "mysql", "sqlite"} {
		t.Run(dbType, func(t *testing.T) {
			dialector, err := Dialect(config.Config{DBType: dbType, DBHost: "localhost", DBPort: "5432"})
			require.NoError(t, err)
			assert.Equal(t, dbType, dialector.Name())
		})
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}
