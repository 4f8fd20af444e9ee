package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gridwatcher/internal/telemetry"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertReadingSQL = `INSERT INTO readings (
        ts,
        solar_watts,
        wind_watts,
        consumption_watts,
        battery_wh,
        sun_intensity,
        wind_speed,
        panel_temp_c,
        panel_efficiency,
        grid_import_watts,
        grid_export_watts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`

	listReadingsBetweenSQL = `SELECT
        ts,
        solar_watts,
        wind_watts,
        consumption_watts,
        battery_wh,
        sun_intensity,
        wind_speed,
        panel_temp_c,
        panel_efficiency,
        grid_import_watts,
        grid_export_watts,
        created_at
    FROM readings
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts;`

	listRecentReadingsSQL = `SELECT
        ts,
        solar_watts,
        wind_watts,
        consumption_watts,
        battery_wh,
        sun_intensity,
        wind_speed,
        panel_temp_c,
        panel_efficiency,
        grid_import_watts,
        grid_export_watts,
        created_at
    FROM readings
    ORDER BY ts DESC
    LIMIT $1;`

	countReadingsSQL = `SELECT COUNT(*) FROM readings;`

	insertAlertSQL = `INSERT INTO alerts (
        subsystem,
        severity,
        message,
        ts,
        resolved
    ) VALUES (
        $1,$2,$3,$4,FALSE
    )
    RETURNING id, subsystem, severity, message, ts, resolved, created_at;`

	listOpenAlertsSQL = `SELECT
        id,
        subsystem,
        severity,
        message,
        ts,
        resolved,
        created_at
    FROM alerts
    WHERE resolved = FALSE
    ORDER BY ts DESC;`

	listRecentAlertsSQL = `SELECT
        id,
        subsystem,
        severity,
        message,
        ts,
        resolved,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	resolveAlertSQL = `UPDATE alerts SET resolved = TRUE WHERE id = $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	insertTransactionSQL = `INSERT INTO transactions (
        ts,
        trade_type,
        amount_kwh,
        price_per_kwh,
        total_value,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, ts, trade_type, amount_kwh, price_per_kwh, total_value, status, created_at;`

	listTransactionsBetweenSQL = `SELECT
        id,
        ts,
        trade_type,
        amount_kwh,
        price_per_kwh,
        total_value,
        status,
        created_at
    FROM transactions
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts DESC;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ReadingStore defines operations for reading persistence.
type ReadingStore interface {
	InsertReading(ctx context.Context, reading Reading) error
	ListReadingsBetween(ctx context.Context, from, to time.Time) ([]Reading, error)
	ListRecentReadings(ctx context.Context, limit int) ([]Reading, error)
	CountReadings(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert persistence.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) (Alert, error)
	ListOpenAlerts(ctx context.Context) ([]Alert, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error)
	ResolveAlert(ctx context.Context, id int64) error
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// TransactionStore defines operations for trade auditing.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to readings, alerts, and transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertReading appends one reading.
func (s *Store) InsertReading(ctx context.Context, reading Reading) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	started := time.Now()
	_, execErr := pool.Exec(ctx, insertReadingSQL,
		reading.Timestamp,
		reading.SolarWatts,
		reading.WindWatts,
		reading.ConsumptionWatts,
		reading.BatteryWh,
		reading.SunIntensity,
		reading.WindSpeed,
		reading.PanelTempC,
		reading.PanelEfficiency,
		reading.GridImportWatts,
		reading.GridExportWatts,
	)
	telemetry.RecordDBQuery("insert", "readings", time.Since(started), execErr)
	if execErr != nil {
		return fmt.Errorf("insert reading: %w", execErr)
	}
	return nil
}

// ListReadingsBetween lists readings within a time window, ascending by timestamp.
func (s *Store) ListReadingsBetween(ctx context.Context, from, to time.Time) ([]Reading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	rows, queryErr := pool.Query(ctx, listReadingsBetweenSQL, from, to)
	telemetry.RecordDBQuery("select", "readings", time.Since(started), queryErr)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings between: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		reading, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, reading)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

// ListRecentReadings lists the most recent readings ordered by descending timestamp.
func (s *Store) ListRecentReadings(ctx context.Context, limit int) ([]Reading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	rows, queryErr := pool.Query(ctx, listRecentReadingsSQL, limit)
	telemetry.RecordDBQuery("select", "readings", time.Since(started), queryErr)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent readings: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]Reading, 0, limit)
	for rows.Next() {
		reading, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, reading)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

// CountReadings counts stored readings.
func (s *Store) CountReadings(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countReadingsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count readings: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	started := time.Now()
	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Subsystem,
		alert.Severity,
		alert.Message,
		alert.Timestamp,
	)

	var rec Alert
	scanErr := row.Scan(
		&rec.ID,
		&rec.Subsystem,
		&rec.Severity,
		&rec.Message,
		&rec.Timestamp,
		&rec.Resolved,
		&rec.CreatedAt,
	)
	telemetry.RecordDBQuery("insert", "alerts", time.Since(started), scanErr)
	if scanErr != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListOpenAlerts lists unresolved alerts, newest first.
func (s *Store) ListOpenAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listOpenAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list open alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListRecentAlerts lists most recent alerts regardless of resolution state.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ResolveAlert flips the resolved flag for one alert.
func (s *Store) ResolveAlert(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, resolveAlertSQL, id)
	if execErr != nil {
		return fmt.Errorf("resolve alert: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// InsertTransaction records an executed trade.
func (s *Store) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return Transaction{}, err
	}

	started := time.Now()
	row := pool.QueryRow(ctx, insertTransactionSQL,
		tx.Timestamp,
		tx.Type,
		tx.AmountKWh.String(),
		tx.PricePerKWh.String(),
		tx.TotalValue.String(),
		tx.Status,
	)

	rec, scanErr := scanTransaction(row)
	telemetry.RecordDBQuery("insert", "transactions", time.Since(started), scanErr)
	if scanErr != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", scanErr)
	}
	return rec, nil
}

// ListTransactionsBetween lists trades within a time window, newest first.
func (s *Store) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTransactionsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list transactions between: %w", queryErr)
	}
	defer rows.Close()

	txs := make([]Transaction, 0)
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan transaction: %w", scanErr)
		}
		txs = append(txs, tx)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return txs, nil
}

func scanReading(rows pgx.Rows) (Reading, error) {
	var r Reading
	if err := rows.Scan(
		&r.Timestamp,
		&r.SolarWatts,
		&r.WindWatts,
		&r.ConsumptionWatts,
		&r.BatteryWh,
		&r.SunIntensity,
		&r.WindSpeed,
		&r.PanelTempC,
		&r.PanelEfficiency,
		&r.GridImportWatts,
		&r.GridExportWatts,
		&r.CreatedAt,
	); err != nil {
		return Reading{}, err
	}
	return r, nil
}

func collectAlerts(rows pgx.Rows) ([]Alert, error) {
	alerts := make([]Alert, 0)
	for rows.Next() {
		var rec Alert
		if err := rows.Scan(
			&rec.ID,
			&rec.Subsystem,
			&rec.Severity,
			&rec.Message,
			&rec.Timestamp,
			&rec.Resolved,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		rec       Transaction
		amountStr string
		priceStr  string
		totalStr  string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Timestamp,
		&rec.Type,
		&amountStr,
		&priceStr,
		&totalStr,
		&rec.Status,
		&rec.CreatedAt,
	); err != nil {
		return Transaction{}, err
	}

	var convErr error
	rec.AmountKWh, convErr = decimal.NewFromString(amountStr)
	if convErr != nil {
		return Transaction{}, fmt.Errorf("parse amount kwh: %w", convErr)
	}
	rec.PricePerKWh, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return Transaction{}, fmt.Errorf("parse price per kwh: %w", convErr)
	}
	rec.TotalValue, convErr = decimal.NewFromString(totalStr)
	if convErr != nil {
		return Transaction{}, fmt.Errorf("parse total value: %w", convErr)
	}

	return rec, nil
}
