// Package store owns trade persistence: one DuckDB database per client,
// holding the raw trades table plus materialized per-magic-number filtered
// tables. The analytics engine never touches this package's internals; it
// only consumes the ordered Partition snapshots loaded here. The store also
// owns the write discipline: appends and snapshot reads for a client are
// serialized behind a per-client lock.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/quantora/trademetrics/internal/logger"
	"github.com/quantora/trademetrics/internal/types"
	"github.com/quantora/trademetrics/pkg/errors"
	"go.uber.org/zap"
)

const (
	databaseFilename = "trades.duckdb"
	metaColumnsKey   = "columns"
)

var tradeColumns = []string{
	"open_time", "close_time", "symbol", "magic_number", "side", "volume",
	"open_price", "close_price", "sl", "tp", "commission", "swap", "profit",
	"profit_points", "duration_seconds", "open_comment", "close_comment",
	"close_reason", "floating_drawdown", "floating_drawdown_currency",
}

// PartitionInfo describes one (magicNumber, rowCount) pair of a client.
type PartitionInfo struct {
	MagicNumber int64 `json:"magic_number"`
	Rows        int   `json:"rows"`
}

type clientDB struct {
	db *sql.DB
	mu sync.Mutex
}

// Store manages the per-client DuckDB databases under a data directory.
type Store struct {
	dataDir string
	logger  *logger.Logger
	sq      squirrel.StatementBuilderType

	mu      sync.Mutex
	clients map[string]*clientDB
}

// Open creates a Store rooted at dataDir. Client databases are opened
// lazily on first use.
func Open(dataDir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeImportFailed, "failed to create data directory", err)
	}

	return &Store{
		dataDir: dataDir,
		logger:  log,
		sq:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		clients: make(map[string]*clientDB),
	}, nil
}

// Close closes every open client database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error

	for clientID, client := range s.clients {
		if err := client.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database for client %s: %w", clientID, err)
		}
	}

	s.clients = make(map[string]*clientDB)

	return firstErr
}

func (s *Store) databasePath(clientID string) string {
	return filepath.Join(s.dataDir, clientID, databaseFilename)
}

// client returns the clientDB for clientID, opening and initializing the
// database file on first use.
func (s *Store) client(clientID string) (*clientDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[clientID]; ok {
		return client, nil
	}

	clientDir := filepath.Join(s.dataDir, clientID)
	if err := os.MkdirAll(clientDir, 0755); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeImportFailed, err, "failed to create client directory %s", clientDir)
	}

	db, err := sql.Open("duckdb", s.databasePath(clientID))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to open database for client %s", clientID)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()

		return nil, err
	}

	client := &clientDB{db: db}
	s.clients[clientID] = client

	s.logger.Debug("Opened client database",
		zap.String("client_id", clientID),
		zap.String("path", s.databasePath(clientID)),
	)

	return client, nil
}

func initializeSchema(db *sql.DB) error {
	// Sequence feeds the seq column: the insertion order every
	// order-sensitive metric depends on.
	_, err := db.Exec(`CREATE SEQUENCE IF NOT EXISTS trade_seq`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create sequence", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			seq BIGINT PRIMARY KEY DEFAULT nextval('trade_seq'),
			open_time TIMESTAMP,
			close_time TIMESTAMP,
			symbol TEXT,
			magic_number BIGINT,
			side TEXT,
			volume DOUBLE,
			open_price DOUBLE,
			close_price DOUBLE,
			sl DOUBLE,
			tp DOUBLE,
			commission DOUBLE,
			swap DOUBLE,
			profit DOUBLE,
			profit_points DOUBLE,
			duration_seconds DOUBLE,
			open_comment TEXT,
			close_comment TEXT,
			close_reason TEXT,
			floating_drawdown DOUBLE,
			floating_drawdown_currency DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create trades table", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create meta table", err)
	}

	return nil
}

func filteredTableName(magicNumber int64) string {
	return fmt.Sprintf("filtered_%d", magicNumber)
}

// recordValues flattens a TradeRecord into insert values matching
// tradeColumns. Optional fields insert as NULL when absent.
func recordValues(record types.TradeRecord) []any {
	nullableFloat := func(opt optional.Option[float64]) any {
		if opt.IsNone() {
			return nil
		}

		return opt.Unwrap()
	}

	var closeReason any
	if record.CloseReason.IsSome() {
		closeReason = string(record.CloseReason.Unwrap())
	}

	return []any{
		record.OpenTime, record.CloseTime, record.Symbol, record.MagicNumber,
		string(record.Side), record.Volume, record.OpenPrice, record.ClosePrice,
		nullableFloat(record.StopLoss), nullableFloat(record.TakeProfit),
		record.Commission, record.Swap, record.Profit, record.ProfitPoints,
		record.Duration.Seconds(), record.OpenComment, record.CloseComment,
		closeReason,
		nullableFloat(record.FloatingDrawdown), nullableFloat(record.FloatingDrawdownCurrency),
	}
}

// RecordColumns derives the canonical column set implied by a single
// record: required columns are always present, optional ones only when set.
func RecordColumns(record types.TradeRecord) types.ColumnSet {
	columns := types.NewColumnSet(
		types.ColumnOpenTime, types.ColumnCloseTime, types.ColumnSymbol,
		types.ColumnMagicNumber, types.ColumnType, types.ColumnVolume,
		types.ColumnOpenPrice, types.ColumnClosePrice, types.ColumnCommission,
		types.ColumnSwap, types.ColumnProfit, types.ColumnProfitPoints,
		types.ColumnDuration, types.ColumnOpenComment, types.ColumnCloseComment,
	)

	if record.StopLoss.IsSome() {
		columns.Add(types.ColumnStopLoss)
	}

	if record.TakeProfit.IsSome() {
		columns.Add(types.ColumnTakeProfit)
	}

	if record.CloseReason.IsSome() {
		columns.Add(types.ColumnCloseReason)
	}

	if record.FloatingDrawdown.IsSome() {
		columns.Add(types.ColumnFloatingDrawdown)
	}

	if record.FloatingDrawdownCurrency.IsSome() {
		columns.Add(types.ColumnFloatingDrawdownCurrency)
	}

	return columns
}

// Append inserts a single closed trade at the end of the client's raw
// sequence. When a filtered table for the record's magic number has already
// been materialized, the record is appended there in the same transaction,
// keeping the cache consistent with the raw sequence.
func (s *Store) Append(ctx context.Context, clientID string, record types.TradeRecord) error {
	client, err := s.client(clientID)
	if err != nil {
		return err
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	tx, err := client.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAppendFailed, "failed to begin transaction", err)
	}

	insert := s.sq.
		Insert("trades").
		Columns(tradeColumns...).
		Values(recordValues(record)...).
		RunWith(tx)

	if _, err = insert.ExecContext(ctx); err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeAppendFailed, "failed to insert trade", err)
	}

	filtered := filteredTableName(record.MagicNumber)

	exists, err := tableExistsTx(ctx, tx, filtered)
	if err != nil {
		tx.Rollback()

		return err
	}

	if exists {
		// The filtered table carries the seq assigned above.
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s SELECT * FROM trades ORDER BY seq DESC LIMIT 1
		`, filtered))
		if err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeAppendFailed, "failed to append to filtered table", err)
		}
	}

	if err := mergeColumnsTx(ctx, tx, RecordColumns(record)); err != nil {
		tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeAppendFailed, "failed to commit transaction", err)
	}

	s.logger.Debug("Trade appended",
		zap.String("client_id", clientID),
		zap.Int64("magic_number", record.MagicNumber),
		zap.Float64("profit", record.Profit),
	)

	return nil
}

// Replace drops the client's current trades and stores the given partition
// records in order, recording the source column set. Stale filtered tables
// are dropped so they re-materialize from the fresh data.
func (s *Store) Replace(ctx context.Context, clientID string, records []types.TradeRecord, columns types.ColumnSet) (int, error) {
	client, err := s.client(clientID)
	if err != nil {
		return 0, err
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	if err := s.dropFilteredTables(ctx, client.db); err != nil {
		return 0, err
	}

	tx, err := client.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeImportFailed, "failed to begin transaction", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM trades`); err != nil {
		tx.Rollback()

		return 0, errors.Wrap(errors.ErrCodeImportFailed, "failed to clear trades table", err)
	}

	for _, record := range records {
		insert := s.sq.
			Insert("trades").
			Columns(tradeColumns...).
			Values(recordValues(record)...).
			RunWith(tx)

		if _, err = insert.ExecContext(ctx); err != nil {
			tx.Rollback()

			return 0, errors.Wrap(errors.ErrCodeImportFailed, "failed to insert trade", err)
		}
	}

	if err := setColumnsTx(ctx, tx, columns); err != nil {
		tx.Rollback()

		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(errors.ErrCodeImportFailed, "failed to commit transaction", err)
	}

	s.logger.Info("Partition data replaced",
		zap.String("client_id", clientID),
		zap.Int("rows", len(records)),
	)

	return len(records), nil
}

// LoadPartition returns the ordered snapshot for one (clientID, magicNumber)
// pair. The filtered table is materialized on first load and reused after,
// mirroring the per-magic-number cache of the upstream ingestion flow.
func (s *Store) LoadPartition(ctx context.Context, clientID string, magicNumber int64) (types.Partition, error) {
	client, err := s.client(clientID)
	if err != nil {
		return types.Partition{}, err
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	filtered := filteredTableName(magicNumber)

	exists, err := tableExists(ctx, client.db, filtered)
	if err != nil {
		return types.Partition{}, err
	}

	if !exists {
		_, err = client.db.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE %s AS SELECT * FROM trades WHERE magic_number = %d ORDER BY seq
		`, filtered, magicNumber))
		if err != nil {
			return types.Partition{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to materialize filtered table", err)
		}
	}

	columns, err := s.loadColumns(ctx, client.db)
	if err != nil {
		return types.Partition{}, err
	}

	query := s.sq.
		Select(tradeColumns...).
		From(filtered).
		OrderBy("seq").
		RunWith(client.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return types.Partition{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query filtered table", err)
	}
	defer rows.Close()

	partition := types.Partition{
		ClientID:    clientID,
		MagicNumber: magicNumber,
		Records:     []types.TradeRecord{},
		Columns:     columns,
	}

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return types.Partition{}, err
		}

		partition.Records = append(partition.Records, record)
	}

	if err := rows.Err(); err != nil {
		return types.Partition{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read trade rows", err)
	}

	return partition, nil
}

// Exists reports whether the client has at least one trade for the magic number.
func (s *Store) Exists(ctx context.Context, clientID string, magicNumber int64) (bool, error) {
	if _, err := os.Stat(s.databasePath(clientID)); os.IsNotExist(err) {
		return false, nil
	}

	client, err := s.client(clientID)
	if err != nil {
		return false, err
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	var count int

	err = client.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE magic_number = ?`, magicNumber,
	).Scan(&count)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count trades", err)
	}

	return count > 0, nil
}

// CountRows returns the number of stored trades for a client; 0 when the
// client has no database yet.
func (s *Store) CountRows(ctx context.Context, clientID string) (int, error) {
	if _, err := os.Stat(s.databasePath(clientID)); os.IsNotExist(err) {
		return 0, nil
	}

	client, err := s.client(clientID)
	if err != nil {
		return 0, err
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	var count int

	err = client.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count trades", err)
	}

	return count, nil
}

// ListClients returns the client IDs that have a database on disk.
func (s *Store) ListClients(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read data directory", err)
	}

	clients := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, err := os.Stat(s.databasePath(entry.Name())); err == nil {
			clients = append(clients, entry.Name())
		}
	}

	return clients, nil
}

// ListPartitions returns the magic numbers of a client with their row counts.
func (s *Store) ListPartitions(ctx context.Context, clientID string) ([]PartitionInfo, error) {
	client, err := s.client(clientID)
	if err != nil {
		return nil, err
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	rows, err := client.db.QueryContext(ctx, `
		SELECT magic_number, COUNT(*) AS rows
		FROM trades
		GROUP BY magic_number
		ORDER BY magic_number
	`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list partitions", err)
	}
	defer rows.Close()

	partitions := []PartitionInfo{}

	for rows.Next() {
		var info PartitionInfo
		if err := rows.Scan(&info.MagicNumber, &info.Rows); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan partition info", err)
		}

		partitions = append(partitions, info)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read partition rows", err)
	}

	return partitions, nil
}

func (s *Store) dropFilteredTables(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_name LIKE 'filtered_%'
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to list filtered tables", err)
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan table name", err)
		}

		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to read table names", err)
	}

	for _, name := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
			return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to drop filtered table %s", name)
		}
	}

	return nil
}

func (s *Store) loadColumns(ctx context.Context, db *sql.DB) (types.ColumnSet, error) {
	var joined string

	err := db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, metaColumnsKey,
	).Scan(&joined)
	if err == sql.ErrNoRows {
		return types.NewColumnSet(), nil
	}

	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to load column metadata", err)
	}

	if joined == "" {
		return types.NewColumnSet(), nil
	}

	return types.NewColumnSet(strings.Split(joined, ",")...), nil
}

func setColumnsTx(ctx context.Context, tx *sql.Tx, columns types.ColumnSet) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, metaColumnsKey)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to clear column metadata", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)`,
		metaColumnsKey, strings.Join(columns.Names(), ","),
	)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to store column metadata", err)
	}

	return nil
}

func mergeColumnsTx(ctx context.Context, tx *sql.Tx, columns types.ColumnSet) error {
	var joined string

	err := tx.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, metaColumnsKey,
	).Scan(&joined)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to load column metadata", err)
	}

	merged := types.NewColumnSet()
	if joined != "" {
		merged = types.NewColumnSet(strings.Split(joined, ",")...)
	}

	for _, name := range columns.Names() {
		merged.Add(name)
	}

	return setColumnsTx(ctx, tx, merged)
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?
	`, name).Scan(&count)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to check table existence", err)
	}

	return count > 0, nil
}

func tableExistsTx(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var count int

	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?
	`, name).Scan(&count)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to check table existence", err)
	}

	return count > 0, nil
}

func scanRecord(rows *sql.Rows) (types.TradeRecord, error) {
	var (
		record          types.TradeRecord
		side            string
		durationSeconds float64
		sl, tp          sql.NullFloat64
		closeReason     sql.NullString
		floating        sql.NullFloat64
		floatingCcy     sql.NullFloat64
	)

	err := rows.Scan(
		&record.OpenTime, &record.CloseTime, &record.Symbol, &record.MagicNumber,
		&side, &record.Volume, &record.OpenPrice, &record.ClosePrice,
		&sl, &tp, &record.Commission, &record.Swap, &record.Profit,
		&record.ProfitPoints, &durationSeconds, &record.OpenComment,
		&record.CloseComment, &closeReason, &floating, &floatingCcy,
	)
	if err != nil {
		return types.TradeRecord{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan trade row", err)
	}

	record.Side = types.Side(side)
	record.Duration = time.Duration(durationSeconds * float64(time.Second))

	if sl.Valid {
		record.StopLoss = optional.Some(sl.Float64)
	}

	if tp.Valid {
		record.TakeProfit = optional.Some(tp.Float64)
	}

	if closeReason.Valid {
		record.CloseReason = optional.Some(types.CloseReason(closeReason.String))
	}

	if floating.Valid {
		record.FloatingDrawdown = optional.Some(floating.Float64)
	}

	if floatingCcy.Valid {
		record.FloatingDrawdownCurrency = optional.Some(floatingCcy.Float64)
	}

	return record, nil
}
