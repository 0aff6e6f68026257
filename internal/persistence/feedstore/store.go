package feedstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "kisfeed/internal/cache"
	"kisfeed/pkg/dolpha"
	"kisfeed/pkg/feed"
)

// Execer is the subset of sqlx.SqlConn the store needs.
type Execer interface {
	ExecCtx(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store writes collected records to Postgres and mirrors the freshest state
// into Redis. Destination tables are created lazily on first use.
type Store struct {
	conn  Execer
	redis *redis.Redis
	ttl   cachekeys.TTLSet

	mu      sync.Mutex
	ensured map[string]bool
}

// NewStore returns a store over the given connection. The Redis client is
// optional; with a nil client cache mirroring is skipped.
func NewStore(conn Execer, rds *redis.Redis, ttl cachekeys.TTLSet) *Store {
	return &Store{
		conn:    conn,
		redis:   rds,
		ttl:     ttl,
		ensured: make(map[string]bool),
	}
}

func (s *Store) ensureTable(ctx context.Context, table, ddl string) error {
	s.mu.Lock()
	done := s.ensured[table]
	s.mu.Unlock()
	if done {
		return nil
	}
	if _, err := s.conn.ExecCtx(ctx, ddl); err != nil {
		return fmt.Errorf("feedstore: ensure table %s: %w", table, err)
	}
	s.mu.Lock()
	s.ensured[table] = true
	s.mu.Unlock()
	return nil
}

// UpsertBars writes a batch of completed bars, grouped per destination table.
// Re-delivered bars overwrite the stored row.
func (s *Store) UpsertBars(ctx context.Context, bars []feed.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	grouped := make(map[string][]feed.Bar)
	for _, bar := range bars {
		table := TableForBar(bar)
		grouped[table] = append(grouped[table], bar)
	}
	tables := make([]string, 0, len(grouped))
	for table := range grouped {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		group := grouped[table]
		if err := s.ensureTable(ctx, table, barTableDDL(table)); err != nil {
			return err
		}
		query, args := buildBarUpsert(table, group)
		if _, err := s.conn.ExecCtx(ctx, query, args...); err != nil {
			return fmt.Errorf("feedstore: upsert %d bars into %s: %w", len(group), table, err)
		}
		s.cacheLatestBars(ctx, group)
	}
	return nil
}

func buildBarUpsert(table string, bars []feed.Bar) (string, []any) {
	const perRow = 8
	placeholders := make([]string, 0, len(bars))
	args := make([]any, 0, len(bars)*perRow)
	for i, bar := range bars {
		base := i * perRow
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args,
			bar.Timestamp.UTC(),
			bar.Symbol,
			bar.Timeframe,
			bar.Open,
			bar.High,
			bar.Low,
			bar.Close,
			bar.Volume,
		)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (timestamp, symbol, timeframe, open, high, low, close, volume)
VALUES %s
ON CONFLICT (timestamp, symbol, timeframe) DO UPDATE SET
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume`, table, strings.Join(placeholders, ", "))
	return query, args
}

// cacheLatestBars mirrors the freshest bar per symbol from the batch.
func (s *Store) cacheLatestBars(ctx context.Context, bars []feed.Bar) {
	if s.redis == nil {
		return
	}
	latest := make(map[string]feed.Bar, len(bars))
	for _, bar := range bars {
		if cur, ok := latest[bar.Symbol]; !ok || bar.Timestamp.After(cur.Timestamp) {
			latest[bar.Symbol] = bar
		}
	}
	ttl := cachekeys.BarLatestTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	for symbol, bar := range latest {
		data, err := cachekeys.EncodeBar(bar)
		if err != nil {
			logx.WithContext(ctx).Errorf("feedstore: encode bar symbol=%s err=%v", symbol, err)
			continue
		}
		key := cachekeys.BarLatestKey(symbol)
		if err := s.redis.SetexCtx(ctx, key, string(data), int(ttl/time.Second)); err != nil {
			logx.WithContext(ctx).Errorf("feedstore: cache bar key=%s err=%v", key, err)
		}
	}
}

// UpsertMatrix writes every metric row of an option matrix.
func (s *Store) UpsertMatrix(ctx context.Context, m *feed.Matrix) error {
	if m == nil {
		return nil
	}
	table := MatrixTable(m.UnderlyingSymbol)
	if err := s.ensureTable(ctx, table, matrixTableDDL(table)); err != nil {
		return err
	}
	query := buildMatrixUpsert(table)
	for _, row := range m.Rows() {
		args := make([]any, 0, 4+len(row.Values))
		args = append(args, row.Timestamp.UTC(), row.UnderlyingSymbol, nullFloat(row.UnderlyingPrice), row.MetricType)
		for _, v := range row.Values {
			args = append(args, nullFloat(v))
		}
		if _, err := s.conn.ExecCtx(ctx, query, args...); err != nil {
			return fmt.Errorf("feedstore: upsert matrix %s metric=%s: %w", m.UnderlyingSymbol, row.MetricType, err)
		}
		s.cacheMatrixRow(ctx, row)
	}
	return nil
}

func buildMatrixUpsert(table string) string {
	columns := feed.MatrixColumns()
	names := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns)+4)
	updates := make([]string, 0, len(columns)+1)
	placeholders = append(placeholders, "$1", "$2", "$3", "$4")
	updates = append(updates, "underlying_price = EXCLUDED.underlying_price")
	for i, col := range columns {
		name := strings.ToLower(col)
		names = append(names, name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+5))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", name, name))
	}
	return fmt.Sprintf(`
INSERT INTO %s (timestamp, underlying_symbol, underlying_price, metric_type, %s)
VALUES (%s)
ON CONFLICT (timestamp, underlying_symbol, metric_type) DO UPDATE SET
    %s`, table, strings.Join(names, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ",\n    "))
}

func (s *Store) cacheMatrixRow(ctx context.Context, row feed.MatrixRow) {
	if s.redis == nil {
		return
	}
	ttl := cachekeys.MatrixTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	data, err := cachekeys.EncodeMatrixRow(row)
	if err != nil {
		logx.WithContext(ctx).Errorf("feedstore: encode matrix row metric=%s err=%v", row.MetricType, err)
		return
	}
	key := cachekeys.MatrixKey(row.UnderlyingSymbol, row.MetricType)
	if err := s.redis.SetexCtx(ctx, key, string(data), int(ttl/time.Second)); err != nil {
		logx.WithContext(ctx).Errorf("feedstore: cache matrix key=%s err=%v", key, err)
	}
}

// UpsertSignal writes one strategy evaluation row.
func (s *Store) UpsertSignal(ctx context.Context, sig dolpha.Signal) error {
	if err := s.ensureTable(ctx, signalTable, signalTableDDL()); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
    timestamp, symbol, close, vwap, atr, move_open, sigma_open,
    upper_band, lower_band, min_from_open, monitor, trade, reason
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (timestamp, symbol) DO UPDATE SET
    close = EXCLUDED.close,
    vwap = EXCLUDED.vwap,
    atr = EXCLUDED.atr,
    move_open = EXCLUDED.move_open,
    sigma_open = EXCLUDED.sigma_open,
    upper_band = EXCLUDED.upper_band,
    lower_band = EXCLUDED.lower_band,
    min_from_open = EXCLUDED.min_from_open,
    monitor = EXCLUDED.monitor,
    trade = EXCLUDED.trade,
    reason = EXCLUDED.reason`, signalTable)
	_, err := s.conn.ExecCtx(ctx, query,
		sig.Timestamp.UTC(),
		sig.Symbol,
		nullFloat(sig.Close),
		nullFloat(sig.VWAP),
		nullFloat(sig.ATR),
		nullFloat(sig.MoveOpen),
		nullFloat(sig.SigmaOpen),
		nullFloat(sig.UpperBand),
		nullFloat(sig.LowerBand),
		sig.MinFromOpen,
		sig.Monitor,
		sig.Trade,
		sig.Reason,
	)
	if err != nil {
		return fmt.Errorf("feedstore: upsert signal %s: %w", sig.Symbol, err)
	}
	s.cacheSignal(ctx, sig)
	return nil
}

func (s *Store) cacheSignal(ctx context.Context, sig dolpha.Signal) {
	if s.redis == nil {
		return
	}
	ttl := cachekeys.SignalTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	data, err := cachekeys.EncodeSignal(sig)
	if err != nil {
		logx.WithContext(ctx).Errorf("feedstore: encode signal symbol=%s err=%v", sig.Symbol, err)
		return
	}
	key := cachekeys.SignalLatestKey(sig.Symbol)
	if err := s.redis.SetexCtx(ctx, key, string(data), int(ttl/time.Second)); err != nil {
		logx.WithContext(ctx).Errorf("feedstore: cache signal key=%s err=%v", key, err)
	}
}

// Heartbeat records component liveness in Postgres and Redis.
func (s *Store) Heartbeat(ctx context.Context, component, status, detail string) error {
	if err := s.ensureTable(ctx, statusTable, statusTableDDL()); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (component, status, detail, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (component) DO UPDATE SET
    status = EXCLUDED.status,
    detail = EXCLUDED.detail,
    updated_at = NOW()`, statusTable)
	if _, err := s.conn.ExecCtx(ctx, query, component, status, detail); err != nil {
		return fmt.Errorf("feedstore: heartbeat %s: %w", component, err)
	}
	if s.redis != nil {
		ttl := cachekeys.StatusTTL(s.ttl)
		if ttl > 0 {
			key := cachekeys.SystemStatusKey(component)
			if err := s.redis.SetexCtx(ctx, key, status, int(ttl/time.Second)); err != nil {
				logx.WithContext(ctx).Errorf("feedstore: cache status key=%s err=%v", key, err)
			}
		}
	}
	return nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
