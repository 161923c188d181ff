package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSnapshotSQL = `INSERT INTO price_snapshots (
        source,
        btc_usd,
        eth_usd,
        eur_rate,
        gbp_rate,
        jpy_rate,
        raw_data
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id;`

	snapshotColumns = `id,
        fetched_at,
        source,
        btc_usd,
        eth_usd,
        eur_rate,
        gbp_rate,
        jpy_rate,
        raw_data`

	latestSnapshotSQL = `SELECT ` + snapshotColumns + `
    FROM price_snapshots
    ORDER BY fetched_at DESC
    LIMIT 1;`

	previousSnapshotSQL = `SELECT ` + snapshotColumns + `
    FROM price_snapshots
    ORDER BY fetched_at DESC
    LIMIT 1 OFFSET 1;`

	listRecentSnapshotsSQL = `SELECT ` + snapshotColumns + `
    FROM price_snapshots
    ORDER BY fetched_at DESC
    LIMIT $1;`

	listSnapshotsBetweenSQL = `SELECT ` + snapshotColumns + `
    FROM price_snapshots
    WHERE fetched_at >= $1
      AND fetched_at < $2
    ORDER BY fetched_at;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM price_snapshots;`

	insertAlertSQL = `INSERT INTO price_alerts (
        asset,
        previous_price,
        current_price,
        change_pct,
        snapshot_id
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        asset,
        previous_price,
        current_price,
        change_pct,
        snapshot_id,
        created_at
    FROM price_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	upsertExecutionSQL = `INSERT INTO execution_log (
        execution_id,
        job_id,
        scheduled_at,
        fired_at,
        status,
        error_message
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (execution_id) DO UPDATE
    SET status        = EXCLUDED.status,
        error_message = EXCLUDED.error_message,
        updated_at    = now();`

	updateExecutionSQL = `UPDATE execution_log
    SET status = $2, error_message = $3, updated_at = now()
    WHERE execution_id = $1;`

	getExecutionSQL = `SELECT
        execution_id,
        job_id,
        scheduled_at,
        fired_at,
        status,
        error_message,
        created_at,
        updated_at
    FROM execution_log
    WHERE execution_id = $1;`
)

// SnapshotStore defines the append-only snapshot log operations.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap NewSnapshot) (int64, error)
	LatestSnapshot(ctx context.Context) (*PriceSnapshot, error)
	PreviousSnapshot(ctx context.Context) (*PriceSnapshot, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]PriceSnapshot, error)
	ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]PriceSnapshot, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert PriceAlert) (PriceAlert, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]PriceAlert, error)
}

// ExecutionStore tracks externally-triggered runs keyed by execution id.
type ExecutionStore interface {
	LogExecution(ctx context.Context, rec ExecutionRecord) error
	UpdateExecutionStatus(ctx context.Context, executionID string, status ExecutionStatus, errorMessage *string) error
	GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error)
}

// Stores bundles the snapshot and alert operations that must share a
// transaction on the pipeline write path.
type Stores interface {
	SnapshotStore
	AlertStore
}

// TxRunner runs a function with transaction-scoped Stores. The transaction
// commits iff fn returns nil; otherwise everything rolls back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Stores) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// method works inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store aggregates access to snapshots, alerts, and the execution log.
type Store struct {
	q    querier
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{q: pool, pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getQuerier() (querier, error) {
	if s == nil || s.q == nil {
		return nil, ErrNotConfigured
	}
	return s.q, nil
}

// InitSchema applies the embedded schema. Statements are idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	q, err := s.getQuerier()
	if err != nil {
		return err
	}
	if _, execErr := q.Exec(ctx, schemaSQL); execErr != nil {
		return fmt.Errorf("init schema: %w", execErr)
	}
	return nil
}

// InTx executes fn against transaction-scoped stores.
func (s *Store) InTx(ctx context.Context, fn func(Stores) error) error {
	if s == nil || s.pool == nil {
		return ErrNotConfigured
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txStore := &Store{q: tx}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback tx: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SaveSnapshot appends a snapshot and returns its assigned identifier.
func (s *Store) SaveSnapshot(ctx context.Context, snap NewSnapshot) (int64, error) {
	q, err := s.getQuerier()
	if err != nil {
		return 0, err
	}

	var id int64
	scanErr := q.QueryRow(ctx, insertSnapshotSQL,
		snap.Source,
		decimalArg(snap.BTCUSD),
		decimalArg(snap.ETHUSD),
		decimalArg(snap.EURRate),
		decimalArg(snap.GBPRate),
		decimalArg(snap.JPYRate),
		[]byte(snap.RawData),
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("save snapshot: %w", scanErr)
	}
	return id, nil
}

// LatestSnapshot returns the most recent snapshot, or nil on an empty log.
func (s *Store) LatestSnapshot(ctx context.Context) (*PriceSnapshot, error) {
	return s.querySnapshot(ctx, latestSnapshotSQL)
}

// PreviousSnapshot returns the second-most-recent snapshot, or nil when
// fewer than two snapshots exist.
func (s *Store) PreviousSnapshot(ctx context.Context) (*PriceSnapshot, error) {
	return s.querySnapshot(ctx, previousSnapshotSQL)
}

func (s *Store) querySnapshot(ctx context.Context, query string) (*PriceSnapshot, error) {
	q, err := s.getQuerier()
	if err != nil {
		return nil, err
	}

	snap, scanErr := scanSnapshot(q.QueryRow(ctx, query))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, scanErr
	}
	return &snap, nil
}

// ListRecentSnapshots lists snapshots ordered by descending fetch time.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]PriceSnapshot, error) {
	q, err := s.getQuerier()
	if err != nil {
		return nil, err
	}

	rows, queryErr := q.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows, limit)
}

// ListSnapshotsBetween lists snapshots within a fetch-time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]PriceSnapshot, error) {
	q, err := s.getQuerier()
	if err != nil {
		return nil, err
	}

	rows, queryErr := q.Query(ctx, listSnapshotsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows, 0)
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	q, err := s.getQuerier()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := q.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists a threshold breach.
func (s *Store) InsertAlert(ctx context.Context, alert PriceAlert) (PriceAlert, error) {
	q, err := s.getQuerier()
	if err != nil {
		return PriceAlert{}, err
	}

	row := q.QueryRow(ctx, insertAlertSQL,
		alert.Asset,
		alert.PreviousPrice.String(),
		alert.CurrentPrice.String(),
		alert.ChangePct.String(),
		alert.SnapshotID,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return PriceAlert{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]PriceAlert, error) {
	q, err := s.getQuerier()
	if err != nil {
		return nil, err
	}

	rows, queryErr := q.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]PriceAlert, 0, limit)
	for rows.Next() {
		var (
			rec         PriceAlert
			previousStr string
			currentStr  string
			changeStr   string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Asset,
			&previousStr,
			&currentStr,
			&changeStr,
			&rec.SnapshotID,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.PreviousPrice, convErr = decimal.NewFromString(previousStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse previous price: %w", convErr)
		}
		rec.CurrentPrice, convErr = decimal.NewFromString(currentStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse current price: %w", convErr)
		}
		rec.ChangePct, convErr = decimal.NewFromString(changeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse change pct: %w", convErr)
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// LogExecution inserts or merges an execution record by execution id. On
// conflict only status and error_message are overwritten, which makes
// repeated delivery of the same trigger idempotent.
func (s *Store) LogExecution(ctx context.Context, rec ExecutionRecord) error {
	q, err := s.getQuerier()
	if err != nil {
		return err
	}

	_, execErr := q.Exec(ctx, upsertExecutionSQL,
		rec.ExecutionID,
		rec.JobID,
		stringArg(rec.ScheduledAt),
		stringArg(rec.FiredAt),
		string(rec.Status),
		stringArg(rec.ErrorMessage),
	)
	if execErr != nil {
		return fmt.Errorf("log execution: %w", execErr)
	}
	return nil
}

// UpdateExecutionStatus updates status and error message by execution id.
// An unknown id is a silent no-op: a stale or duplicate delivery is not an
// error.
func (s *Store) UpdateExecutionStatus(ctx context.Context, executionID string, status ExecutionStatus, errorMessage *string) error {
	q, err := s.getQuerier()
	if err != nil {
		return err
	}

	if _, execErr := q.Exec(ctx, updateExecutionSQL, executionID, string(status), stringArg(errorMessage)); execErr != nil {
		return fmt.Errorf("update execution status: %w", execErr)
	}
	return nil
}

// GetExecution fetches an execution record, or nil when the id is unknown.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	q, err := s.getQuerier()
	if err != nil {
		return nil, err
	}

	var (
		rec          ExecutionRecord
		scheduledAt  sql.NullString
		firedAt      sql.NullString
		status       string
		errorMessage sql.NullString
	)
	scanErr := q.QueryRow(ctx, getExecutionSQL, executionID).Scan(
		&rec.ExecutionID,
		&rec.JobID,
		&scheduledAt,
		&firedAt,
		&status,
		&errorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get execution: %w", scanErr)
	}

	rec.Status = ExecutionStatus(status)
	if scheduledAt.Valid {
		v := scheduledAt.String
		rec.ScheduledAt = &v
	}
	if firedAt.Valid {
		v := firedAt.String
		rec.FiredAt = &v
	}
	if errorMessage.Valid {
		v := errorMessage.String
		rec.ErrorMessage = &v
	}
	return &rec, nil
}

func collectSnapshots(rows pgx.Rows, sizeHint int) ([]PriceSnapshot, error) {
	snapshots := make([]PriceSnapshot, 0, sizeHint)
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scannable) (PriceSnapshot, error) {
	var (
		snap    PriceSnapshot
		btcStr  sql.NullString
		ethStr  sql.NullString
		eurStr  sql.NullString
		gbpStr  sql.NullString
		jpyStr  sql.NullString
		rawData json.RawMessage
	)

	if err := row.Scan(
		&snap.ID,
		&snap.FetchedAt,
		&snap.Source,
		&btcStr,
		&ethStr,
		&eurStr,
		&gbpStr,
		&jpyStr,
		&rawData,
	); err != nil {
		return PriceSnapshot{}, err
	}

	var err error
	if snap.BTCUSD, err = parseNullDecimal(btcStr); err != nil {
		return PriceSnapshot{}, fmt.Errorf("parse btc_usd: %w", err)
	}
	if snap.ETHUSD, err = parseNullDecimal(ethStr); err != nil {
		return PriceSnapshot{}, fmt.Errorf("parse eth_usd: %w", err)
	}
	if snap.EURRate, err = parseNullDecimal(eurStr); err != nil {
		return PriceSnapshot{}, fmt.Errorf("parse eur_rate: %w", err)
	}
	if snap.GBPRate, err = parseNullDecimal(gbpStr); err != nil {
		return PriceSnapshot{}, fmt.Errorf("parse gbp_rate: %w", err)
	}
	if snap.JPYRate, err = parseNullDecimal(jpyStr); err != nil {
		return PriceSnapshot{}, fmt.Errorf("parse jpy_rate: %w", err)
	}
	snap.RawData = rawData

	return snap, nil
}

func parseNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func stringArg(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

var (
	_ SnapshotStore  = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ ExecutionStore = (*Store)(nil)
	_ TxRunner       = (*Store)(nil)
)
