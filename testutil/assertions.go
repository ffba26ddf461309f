package testutil

import (
	"testing"

	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// NewEngine returns a migrated engine in a temporary directory.
func NewEngine(t *testing.T) *auctiondb.Engine {
	engine, err := auctiondb.NewEngine(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, auctiondb.MigrateDB(engine))
	t.Cleanup(func() {
		engine.Close()
	})
	return engine
}

func RequireErrorIs(t *testing.T, err error, target error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, target), "expected %v, got %v", target, err)
}

var (
	Alice = chain.MustParsePrincipal("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	Bob   = chain.MustParsePrincipal("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	Carol = chain.MustParsePrincipal("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	Dave  = chain.MustParsePrincipal("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65")
)
