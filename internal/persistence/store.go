package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"PerpVamm/internal/vamm"
)

// MarketStore writes market state and reserve snapshots to Postgres using
// multi-row INSERTs. The write-behind worker owns the transaction; the store
// only builds and executes the statements.
type MarketStore struct {
	db *sql.DB
}

func NewMarketStore(db *sql.DB) *MarketStore {
	return &MarketStore{db: db}
}

func (s *MarketStore) DB() *sql.DB {
	return s.db
}

// UpsertStates writes the newest state per market from a batch of updates.
// Earlier updates for the same market are superseded within the batch, so
// only the last one per market reaches the table.
func (s *MarketStore) UpsertStates(ctx context.Context, tx *sql.Tx, updates []vamm.Update) (int, error) {
	latest := make(map[string]vamm.Update, len(updates))
	order := make([]string, 0, len(updates))
	for _, u := range updates {
		if _, seen := latest[u.MarketID]; !seen {
			order = append(order, u.MarketID)
		}
		latest[u.MarketID] = u
	}
	if len(latest) == 0 {
		return 0, nil
	}

	query := `INSERT INTO vamm.markets
		(market_id, open, quote_asset_reserve, base_asset_reserve, total_position_size, funding_rate, next_funding_time, updated_at)
		VALUES `

	values := make([]string, 0, len(latest))
	args := make([]interface{}, 0, len(latest)*8)

	for i, id := range order {
		u := latest[id]
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, to_timestamp($%d))",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			u.MarketID, u.State.Open,
			int64(u.State.QuoteAssetReserve), int64(u.State.BaseAssetReserve),
			u.State.TotalPositionSize, u.State.FundingRate,
			u.State.NextFundingTime, u.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (market_id) DO UPDATE SET
		open = EXCLUDED.open,
		quote_asset_reserve = EXCLUDED.quote_asset_reserve,
		base_asset_reserve = EXCLUDED.base_asset_reserve,
		total_position_size = EXCLUDED.total_position_size,
		funding_rate = EXCLUDED.funding_rate,
		next_funding_time = EXCLUDED.next_funding_time,
		updated_at = EXCLUDED.updated_at`

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, err
	}
	return len(latest), nil
}

// InsertSnapshots appends the reserve snapshots carried by a batch of
// updates. Only swap updates carry one.
func (s *MarketStore) InsertSnapshots(ctx context.Context, tx *sql.Tx, updates []vamm.Update) (int, error) {
	var rows []vamm.Update
	for _, u := range updates {
		if u.Snapshot != nil {
			rows = append(rows, u)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO vamm.reserve_snapshots
		(snapshot_id, market_id, block_height, snapshot_time, quote_asset_reserve, base_asset_reserve)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*6)

	for i, u := range rows {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			uuid.NewString(), u.MarketID,
			u.Snapshot.BlockHeight, u.Snapshot.Timestamp,
			int64(u.Snapshot.QuoteAssetReserve), int64(u.Snapshot.BaseAssetReserve),
		)
	}

	query += strings.Join(values, ", ")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// LoadState reads a market's persisted state row. sql.ErrNoRows when the
// market was never persisted.
func (s *MarketStore) LoadState(ctx context.Context, marketID string) (vamm.State, error) {
	var (
		st           vamm.State
		quote, base_ int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT open, quote_asset_reserve, base_asset_reserve, total_position_size, funding_rate, next_funding_time
		FROM vamm.markets WHERE market_id = $1
	`, marketID).Scan(&st.Open, &quote, &base_, &st.TotalPositionSize, &st.FundingRate, &st.NextFundingTime)
	if err != nil {
		return vamm.State{}, err
	}
	st.QuoteAssetReserve = uint64(quote)
	st.BaseAssetReserve = uint64(base_)
	return st, nil
}
