package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/analytics"
	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/market"
	"github.com/nitinkhare/cryptopaper/internal/strategy"
	"github.com/nitinkhare/cryptopaper/internal/trader"
)

// dbTimeout bounds every query per §5's "Per-DB-query: 10s".
const dbTimeout = 10 * time.Second

// storeErr wraps a connection-establishment failure so callers (the CLI
// entrypoint) can tell a fatal store error (exit code 2, §6) apart from a
// fatal config error (exit code 1).
type storeErr struct{ err error }

func (e storeErr) Error() string { return e.err.Error() }
func (e storeErr) Unwrap() error { return e.err }

// IsStoreError reports whether err originated from connecting to the
// persistent store, as opposed to config validation or another fatal path.
func IsStoreError(err error) bool {
	var se storeErr
	return errors.As(err, &se)
}

// PostgresStore implements every narrow Store interface the domain
// packages define (market.Store, config.AuditWriter, trader.Store,
// scanlog.Store, HeartbeatWriter, ConfigSource) over one pgxpool.Pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore opens a connection pool against dsn and verifies
// connectivity with a bounded ping.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, storeErr{fmt.Errorf("storage: connection string is required")}
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storeErr{fmt.Errorf("storage: parse dsn: %w", err)}
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolCfg)
	if err != nil {
		return nil, storeErr{fmt.Errorf("storage: create pool: %w", err)}
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, storeErr{fmt.Errorf("storage: ping: %w", err)}
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the pool is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// --- market.Store ---

const ohlcColumns = "symbol, timeframe, timestamp, open, high, low, close, volume, vwap, trades"

func (s *PostgresStore) QueryBase(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	return s.queryBars(ctx, "ohlc_data", symbol, tf, from, to)
}

func (s *PostgresStore) QueryTodayView(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	bars, err := s.queryBars(ctx, "ohlc_today", symbol, tf, from, to)
	if isUndefinedTable(err) {
		return nil, market.ErrViewUnavailable
	}
	return bars, err
}

func (s *PostgresStore) QueryRecentView(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	bars, err := s.queryBars(ctx, "ohlc_recent", symbol, tf, from, to)
	if isUndefinedTable(err) {
		return nil, market.ErrViewUnavailable
	}
	return bars, err
}

func (s *PostgresStore) queryBars(ctx context.Context, relation, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp <= $4 ORDER BY timestamp ASC`, ohlcColumns, relation)
	rows, err := s.pool.Query(ctx, query, symbol, string(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("storage: query %s: %w", relation, err)
	}
	defer rows.Close()

	var out []market.OhlcBar
	for rows.Next() {
		var b market.OhlcBar
		var tfStr string
		if err := rows.Scan(&b.Symbol, &tfStr, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Vwap, &b.Trades); err != nil {
			return nil, fmt.Errorf("storage: scan %s row: %w", relation, err)
		}
		b.Timeframe = market.Timeframe(tfStr)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate %s: %w", relation, err)
	}
	return out, nil
}

// InsertBars upserts a batch of backfilled bars into ohlc_data,
// implementing ingest.Store. Conflicting (symbol, timeframe, timestamp)
// rows are overwritten, so re-running a backfill over an already-loaded
// range is idempotent.
func (s *PostgresStore) InsertBars(ctx context.Context, bars []market.OhlcBar) error {
	if len(bars) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const q = `INSERT INTO ohlc_data (symbol, timeframe, timestamp, open, high, low, close, volume, vwap, trades)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume, vwap = EXCLUDED.vwap, trades = EXCLUDED.trades`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(q, b.Symbol, string(b.Timeframe), b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume, b.Vwap, b.Trades)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("storage: insert bar batch: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) LatestBar(ctx context.Context, symbol string, tf market.Timeframe) (*market.OhlcBar, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM ohlc_data WHERE symbol = $1 AND timeframe = $2 ORDER BY timestamp DESC LIMIT 1`, ohlcColumns)
	row := s.pool.QueryRow(ctx, query, symbol, string(tf))

	var b market.OhlcBar
	var tfStr string
	if err := row.Scan(&b.Symbol, &tfStr, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Vwap, &b.Trades); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: latest bar: %w", err)
	}
	b.Timeframe = market.Timeframe(tfStr)
	return &b, nil
}

func isUndefinedTable(err error) bool {
	return err != nil && (isPgCode(err, "42P01"))
}

// --- scanlog.Store ---

func (s *PostgresStore) InsertDecisions(ctx context.Context, decisions []strategy.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	const q = `INSERT INTO scan_history
		(scan_id, timestamp, symbol, strategy_name, decision, reason, market_regime, btc_price,
		 features, setup_data, ml_confidence, ml_predictions, thresholds_used, proposed_position_size, trade_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (scan_id, symbol, strategy_name) DO NOTHING`

	for _, d := range decisions {
		featuresJSON, err := json.Marshal(d.Features)
		if err != nil {
			return fmt.Errorf("storage: marshal features: %w", err)
		}
		setupJSON, err := json.Marshal(d.SetupData)
		if err != nil {
			return fmt.Errorf("storage: marshal setup_data: %w", err)
		}
		predictionsJSON, err := json.Marshal(d.MLPredictions)
		if err != nil {
			return fmt.Errorf("storage: marshal ml_predictions: %w", err)
		}
		var tradeID *string
		if d.TradeID != nil {
			v := d.TradeID.String()
			tradeID = &v
		}
		batch.Queue(q, d.ScanID.String(), d.Timestamp, d.Symbol, string(d.Strategy), string(d.Outcome), string(d.Reason),
			string(d.MarketRegime), d.BTCPrice, featuresJSON, setupJSON, d.MLConfidence, predictionsJSON,
			d.ThresholdsUsed, d.ProposedPositionSize, tradeID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range decisions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("storage: insert scan_history row: %w", err)
		}
	}
	return nil
}

// --- trader.Store ---

func (s *PostgresStore) LoadOpenPositions(ctx context.Context) ([]trader.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const q = `SELECT trade_group_id, symbol, strategy_name, price, amount, pnl, created_at,
		stop_loss, take_profit, trailing_stop_pct, hold_time_hours, scan_id
		FROM paper_trades b
		WHERE b.side = 'BUY' AND NOT EXISTS (
			SELECT 1 FROM paper_trades s WHERE s.side = 'SELL' AND s.trade_group_id = b.trade_group_id
		)
		ORDER BY b.created_at ASC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("storage: load open positions: %w", err)
	}
	defer rows.Close()

	var out []trader.Position
	for rows.Next() {
		var (
			pos                   trader.Position
			groupID, scanID       string
			strategyName          string
			price, amount, pnl    float64
			stopLoss, takeProfit  float64
			trailingPct, holdHrs  float64
		)
		if err := rows.Scan(&groupID, &pos.Symbol, &strategyName, &price, &amount, &pnl, &pos.OpenedAt,
			&stopLoss, &takeProfit, &trailingPct, &holdHrs, &scanID); err != nil {
			return nil, fmt.Errorf("storage: scan open position: %w", err)
		}
		gid, err := uuid.Parse(groupID)
		if err != nil {
			return nil, fmt.Errorf("storage: parse trade_group_id: %w", err)
		}
		pos.TradeGroupID = gid
		pos.Strategy = config.StrategyName(strategyName)
		pos.EntryPrice = decimal.NewFromFloat(price)
		pos.Amount = decimal.NewFromFloat(amount)
		pos.Notional = pos.EntryPrice.Mul(pos.Amount)
		pos.StopLoss = decimal.NewFromFloat(stopLoss)
		pos.TakeProfit = decimal.NewFromFloat(takeProfit)
		pos.TrailingStopPct = trailingPct
		pos.HighWatermark = pos.EntryPrice
		pos.TimeoutAt = pos.OpenedAt.Add(time.Duration(holdHrs * float64(time.Hour)))
		pos.Status = trader.StatusOpen
		if sid, err := uuid.Parse(scanID); err == nil {
			pos.ScanID = sid
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertOpen(ctx context.Context, pos trader.Position) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const q = `INSERT INTO paper_trades
		(trade_id, trade_group_id, symbol, strategy_name, side, price, amount, created_at, stop_loss,
		 take_profit, trailing_stop_pct, scan_id, trading_engine)
		VALUES ($1,$2,$3,$4,'BUY',$5,$6,$7,$8,$9,$10,$11,$12)`

	entryPrice, _ := pos.EntryPrice.Float64()
	amount, _ := pos.Amount.Float64()
	stopLoss, _ := pos.StopLoss.Float64()
	takeProfit, _ := pos.TakeProfit.Float64()

	_, err := s.pool.Exec(ctx, q, uuid.New().String(), pos.TradeGroupID.String(), pos.Symbol, string(pos.Strategy),
		entryPrice, amount, pos.OpenedAt, stopLoss, takeProfit, pos.TrailingStopPct, pos.ScanID.String(), "paper")
	if err != nil {
		return fmt.Errorf("storage: insert open position: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertClose(ctx context.Context, pos trader.Position, exit trader.ExitRecord) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const q = `INSERT INTO paper_trades
		(trade_id, trade_group_id, symbol, strategy_name, side, price, amount, pnl, created_at, filled_at,
		 exit_reason, hold_time_hours, scan_id, trading_engine)
		VALUES ($1,$2,$3,$4,'SELL',$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	exitPrice, _ := exit.ExitPrice.Float64()
	amount, _ := pos.Amount.Float64()
	pnl, _ := exit.PnL.Float64()

	_, err := s.pool.Exec(ctx, q, uuid.New().String(), pos.TradeGroupID.String(), pos.Symbol, string(pos.Strategy),
		exitPrice, amount, pnl, exit.ClosedAt, exit.ClosedAt, string(exit.ExitReason), exit.HoldTimeHours,
		pos.ScanID.String(), "paper")
	if err != nil {
		return fmt.Errorf("storage: insert close position: %w", err)
	}
	return nil
}

// --- config.AuditWriter / ConfigSource ---

func (s *PostgresStore) SaveConfigAudit(entry config.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	const q = `INSERT INTO config_history (timestamp, config_version, section_changed, old_value, new_value, changed_by)
		VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.pool.Exec(ctx, q, entry.Timestamp, entry.Version, entry.SectionChanged, entry.OldValue, entry.NewValue, entry.ChangedBy)
	if err != nil {
		return fmt.Errorf("storage: save config audit: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadActiveConfig(ctx context.Context, configKey string) (*ActiveConfigRow, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const q = `SELECT config_key, config_version, config_data, last_updated, updated_by
		FROM trading_config WHERE config_key = $1`
	row := s.pool.QueryRow(ctx, q, configKey)

	var out ActiveConfigRow
	if err := row.Scan(&out.ConfigKey, &out.ConfigVersion, &out.ConfigData, &out.LastUpdated, &out.UpdatedBy); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: load active config: %w", err)
	}
	return &out, nil
}

// --- HeartbeatWriter ---

func (s *PostgresStore) UpsertHeartbeat(ctx context.Context, hb Heartbeat) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	metadata, err := json.Marshal(hb.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal heartbeat metadata: %w", err)
	}
	const q = `INSERT INTO system_heartbeat (service_name, last_heartbeat, status, metadata)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (service_name) DO UPDATE SET last_heartbeat = $2, status = $3, metadata = $4`
	_, err = s.pool.Exec(ctx, q, hb.ServiceName, hb.LastHeartbeat, string(hb.Status), metadata)
	if err != nil {
		return fmt.Errorf("storage: upsert heartbeat: %w", err)
	}
	return nil
}

// --- analytics support ---

func (s *PostgresStore) StrategyBreakdown(ctx context.Context, since time.Time) ([]analytics.StrategyStats, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const q = `SELECT strategy_name,
		count(*) FILTER (WHERE side = 'SELL') AS trade_count,
		count(*) FILTER (WHERE side = 'SELL' AND pnl > 0) AS win_count,
		coalesce(sum(pnl) FILTER (WHERE side = 'SELL' AND pnl > 0), 0) AS gross_profit,
		coalesce(-sum(pnl) FILTER (WHERE side = 'SELL' AND pnl < 0), 0) AS gross_loss
		FROM paper_trades WHERE created_at >= $1
		GROUP BY strategy_name ORDER BY strategy_name`

	rows, err := s.pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("storage: strategy breakdown: %w", err)
	}
	defer rows.Close()

	var out []analytics.StrategyStats
	for rows.Next() {
		var t analytics.StrategyStats
		if err := rows.Scan(&t.Strategy, &t.TradeCount, &t.WinCount, &t.GrossProfit, &t.GrossLoss); err != nil {
			return nil, fmt.Errorf("storage: scan strategy breakdown row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ClosedTradePnLs(ctx context.Context, since time.Time) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT pnl FROM paper_trades WHERE side = 'SELL' AND created_at >= $1 ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("storage: closed trade pnls: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var pnl float64
		if err := rows.Scan(&pnl); err != nil {
			return nil, fmt.Errorf("storage: scan pnl row: %w", err)
		}
		out = append(out, pnl)
	}
	return out, rows.Err()
}

// isPgCode reports whether err is a *pgconn.PgError with the given SQLSTATE.
func isPgCode(err error, code string) bool {
	type pgErr interface{ SQLState() string }
	var pe pgErr
	for e := err; e != nil; e = unwrap(e) {
		if p, ok := e.(pgErr); ok {
			pe = p
			break
		}
	}
	return pe != nil && pe.SQLState() == code
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}
