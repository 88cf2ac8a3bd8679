package persistence_test

import (
	"context"
	"testing"

	"PerpVamm/internal/persistence"
	"PerpVamm/internal/testutil"
	"PerpVamm/internal/vamm"
)

func TestMarketStoreRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := persistence.NewMarketStore(db)

	snap := &vamm.ReserveSnapshot{
		BlockHeight:       2,
		Timestamp:         1_000_100,
		QuoteAssetReserve: 1_600_000_000,
		BaseAssetReserve:  62_500_000,
	}
	updates := []vamm.Update{
		{
			MarketID: "ubtc:uusd",
			Kind:     vamm.UpdateOpen,
			State: vamm.State{
				Open:              true,
				QuoteAssetReserve: 1_000_000_000,
				BaseAssetReserve:  100_000_000,
				NextFundingTime:   1_003_600,
			},
			Timestamp: 1_000_000,
		},
		{
			MarketID: "ubtc:uusd",
			Kind:     vamm.UpdateSwap,
			State: vamm.State{
				Open:              true,
				QuoteAssetReserve: 1_600_000_000,
				BaseAssetReserve:  62_500_000,
				TotalPositionSize: 37_500_000,
				NextFundingTime:   1_003_600,
			},
			Snapshot:  snap,
			Timestamp: 1_000_100,
		},
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	// Two updates for one market collapse into a single upserted row.
	stateRows, err := store.UpsertStates(ctx, tx, updates)
	if err != nil {
		t.Fatalf("UpsertStates: %v", err)
	}
	if stateRows != 1 {
		t.Fatalf("state rows = %d, want 1", stateRows)
	}

	snapRows, err := store.InsertSnapshots(ctx, tx, updates)
	if err != nil {
		t.Fatalf("InsertSnapshots: %v", err)
	}
	if snapRows != 1 {
		t.Fatalf("snapshot rows = %d, want 1", snapRows)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	st, err := store.LoadState(ctx, "ubtc:uusd")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !st.Open || st.QuoteAssetReserve != 1_600_000_000 || st.BaseAssetReserve != 62_500_000 {
		t.Fatalf("loaded state = %+v, want the later update's reserves", st)
	}
	if st.TotalPositionSize != 37_500_000 || st.NextFundingTime != 1_003_600 {
		t.Fatalf("loaded state = %+v, position/funding fields lost", st)
	}

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM vamm.reserve_snapshots WHERE market_id = $1`, "ubtc:uusd").Scan(&count); err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("snapshot count = %d, want 1", count)
	}
}

func TestLoadStateUnknownMarket(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := persistence.NewMarketStore(db)
	if _, err := store.LoadState(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unpersisted market")
	}
}
