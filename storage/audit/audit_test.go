package audit

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendcore/native/risk"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListLiquidations(t *testing.T) {
	store := openTestStore(t)

	event := risk.LiquidationEvent{
		ID:           "evt-1",
		Account:      "alice",
		Liquidator:   "bob",
		RepaidAsset:  "YTK",
		RepaidAmount: big.NewInt(500),
		SeizedAsset:  "XTK",
		SeizedAmount: big.NewInt(440),
		IncentiveBps: 1000,
		BadDebt:      big.NewInt(100),
		Timestamp:    time.Unix(1_700_000_000, 0).UTC(),
	}
	require.NoError(t, store.RecordLiquidation(event))

	rows, err := store.Liquidations("alice", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "evt-1", rows[0].ID)
	require.Equal(t, "500", rows[0].RepaidAmount)
	require.Equal(t, "440", rows[0].SeizedAmount)
	require.Equal(t, "100", rows[0].BadDebt)
	require.Equal(t, uint64(1000), rows[0].IncentiveBps)

	rows, err = store.Liquidations("carol", 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestBadDebtTrailAppends(t *testing.T) {
	store := openTestStore(t)

	for _, amount := range []int64{100, 25} {
		require.NoError(t, store.RecordBadDebt(risk.BadDebtRecord{
			Account: "alice",
			Asset:   "YTK",
			Amount:  big.NewInt(amount),
		}))
	}

	rows, err := store.BadDebtTrail("alice")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "100", rows[0].Amount)
	require.Equal(t, "25", rows[1].Amount)
}

func TestStoreSatisfiesAuditor(t *testing.T) {
	var _ risk.Auditor = openTestStore(t)
}
