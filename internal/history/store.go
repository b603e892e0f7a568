package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Table names for coverage history.
const (
	reportRunsTable     = "covagg_report_runs"
	bundleCoverageTable = "covagg_bundle_coverage"
	migrationsTable     = "covagg_schema_migrations"
)

// Store persists report runs and bundle counters in a SQL database.
type Store struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.HistoryStore = &Store{} // Compile-time check

// NewStore opens the history database for backend, bringing its schema to the latest version.
// The none backend yields a store that records nothing.
func NewStore(backend schema.DatabaseBackend, connStr string) (*Store, error) {
	if backend == schema.NoneBackend || backend == "" {
		return &Store{backend: schema.NoneBackend}, nil
	}
	if _, err := Migrate(backend, connStr, -1); err != nil {
		return nil, fmt.Errorf("failed to prepare history schema: %w", err)
	}
	db, err := openDB(backend, connStr)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, backend: backend}, nil
}

// driverName maps a backend to its database/sql driver.
func driverName(backend schema.DatabaseBackend) (string, error) {
	switch backend {
	case schema.SQLiteBackend:
		return "sqlite", nil
	case schema.MySQLBackend:
		return "mysql", nil
	case schema.PostgreSQLBackend:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported backend: %s", backend)
	}
}

// dataSource returns the DSN for backend. SQLite falls back to the per-user file;
// MySQL always parses DATETIME columns into time.Time.
func dataSource(backend schema.DatabaseBackend, connStr string) (string, error) {
	switch backend {
	case schema.SQLiteBackend:
		if connStr == "" {
			return contract.GetHistoryDBFilePath(), nil
		}
		return connStr, nil
	case schema.MySQLBackend:
		cfg, err := mysql.ParseDSN(connStr)
		if err != nil {
			return "", fmt.Errorf("invalid MySQL connection string: %w. Expected user:password@tcp(host:port)/dbname", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	default:
		return connStr, nil
	}
}

// openDB opens and pings the database, retrying the ping with exponential backoff.
func openDB(backend schema.DatabaseBackend, connStr string) (*sql.DB, error) {
	driver, err := driverName(backend)
	if err != nil {
		return nil, err
	}
	dsn, err := dataSource(backend, connStr)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	if backend == schema.SQLiteBackend {
		// Limit SQLite to a single open connection to avoid "database is locked" errors
		db.SetMaxOpenConns(1)
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 200 * time.Millisecond
	retry.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(db.Ping, retry); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w. Verify the database server is running and the connection string is correct", backend, err)
	}
	return db, nil
}

// rebind rewrites '?' placeholders to '$n' for PostgreSQL.
func rebind(query string, backend schema.DatabaseBackend) string {
	if backend != schema.PostgreSQLBackend {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) disabled() bool {
	return s.backend == schema.NoneBackend || s.db == nil
}

// BeginRun creates a new report run and returns its unique ID.
func (s *Store) BeginRun(startTime time.Time, title string, configParams map[string]any) (int64, error) {
	if s.disabled() {
		return 0, nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}
	runUUID := uuid.NewString()

	var runID int64
	switch s.backend {
	case schema.PostgreSQLBackend:
		query := rebind(`INSERT INTO `+reportRunsTable+` (run_uuid, title, start_time, config_params) VALUES (?, ?, ?, ?) RETURNING run_id`, s.backend)
		err = s.db.QueryRow(query, runUUID, title, startTime, string(configJSON)).Scan(&runID)
	default: // SQLite and MySQL
		query := `INSERT INTO ` + reportRunsTable + ` (run_uuid, title, start_time, config_params) VALUES (?, ?, ?, ?)`
		var result sql.Result
		result, err = s.db.Exec(query, runUUID, title, formatTime(startTime, s.backend), string(configJSON))
		if err == nil {
			runID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert report run: %w", err)
	}
	return runID, nil
}

// RecordBundle stores the counters of one bundle for a run.
func (s *Store) RecordBundle(runID int64, bundle schema.BundleSummary, recordTime time.Time) error {
	if s.disabled() {
		return nil
	}
	c := bundle.Counters
	query := rebind(`
		INSERT INTO `+bundleCoverageTable+` (run_id, bundle_name, record_time,
		    instruction_missed, instruction_covered, branch_missed, branch_covered,
		    line_missed, line_covered, complexity_missed, complexity_covered,
		    method_missed, method_covered, class_missed, class_covered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.backend)
	_, err := s.db.Exec(query, runID, bundle.Name, formatTime(recordTime, s.backend),
		c.Instruction.Missed, c.Instruction.Covered, c.Branch.Missed, c.Branch.Covered,
		c.Line.Missed, c.Line.Covered, c.Complexity.Missed, c.Complexity.Covered,
		c.Method.Missed, c.Method.Covered, c.Class.Missed, c.Class.Covered)
	if err != nil {
		return fmt.Errorf("failed to insert bundle coverage: %w", err)
	}
	return nil
}

// EndRun updates the report run with completion data.
func (s *Store) EndRun(runID int64, endTime time.Time, totalBundles int) error {
	if s.disabled() {
		return nil
	}

	row := s.db.QueryRow(rebind(`SELECT start_time FROM `+reportRunsTable+` WHERE run_id = ?`, s.backend), runID)
	startTime, err := scanTime(row.Scan, s.backend)
	if err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}

	durationMs := endTime.Sub(startTime).Milliseconds()
	query := rebind(`UPDATE `+reportRunsTable+` SET end_time = ?, run_duration_ms = ?, total_bundles = ? WHERE run_id = ?`, s.backend)
	if _, err := s.db.Exec(query, formatTime(endTime, s.backend), durationMs, totalBundles, runID); err != nil {
		return fmt.Errorf("failed to update report run: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetStatus returns status information about the history store.
func (s *Store) GetStatus() (schema.HistoryStatus, error) {
	status := schema.HistoryStatus{
		Backend:    string(s.backend),
		Connected:  s.db != nil,
		TableSizes: make(map[string]int64),
	}
	if s.disabled() {
		return status, nil
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + reportRunsTable).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		row := s.db.QueryRow(`SELECT run_id, start_time FROM ` + reportRunsTable + ` ORDER BY run_id DESC LIMIT 1`)
		var lastRunID int64
		lastRunTime, err := scanTime(func(dest ...any) error {
			return row.Scan(append([]any{&lastRunID}, dest...)...)
		}, s.backend)
		if err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		status.LastRunID = lastRunID
		status.LastRunTime = lastRunTime

		row = s.db.QueryRow(`SELECT start_time FROM ` + reportRunsTable + ` ORDER BY run_id ASC LIMIT 1`)
		if status.OldestRunTime, err = scanTime(row.Scan, s.backend); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}

		if err := s.db.QueryRow(`SELECT COALESCE(SUM(total_bundles), 0) FROM ` + reportRunsTable).Scan(&status.TotalBundles); err != nil {
			return status, fmt.Errorf("failed to get total bundles: %w", err)
		}
	}

	for _, table := range []string{reportRunsTable, bundleCoverageTable} {
		var count int64
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	return status, nil
}

// GetAllRuns retrieves every report run ordered by ID.
func (s *Store) GetAllRuns() ([]schema.ReportRunRecord, error) {
	if s.disabled() {
		return nil, nil
	}

	rows, err := s.db.Query(`SELECT run_id, run_uuid, title, start_time, end_time, run_duration_ms, total_bundles, config_params FROM ` + reportRunsTable + ` ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query report runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.ReportRunRecord
	for rows.Next() {
		var record schema.ReportRunRecord
		switch s.backend {
		case schema.SQLiteBackend:
			var startTimeStr string
			var endTimeStr *string
			if err := rows.Scan(&record.RunID, &record.RunUUID, &record.Title, &startTimeStr, &endTimeStr,
				&record.RunDurationMs, &record.TotalBundles, &record.ConfigParams); err != nil {
				return nil, fmt.Errorf("failed to scan report run: %w", err)
			}
			if record.StartTime, err = time.Parse(time.RFC3339Nano, startTimeStr); err != nil {
				return nil, fmt.Errorf("failed to parse start_time: %w", err)
			}
			if endTimeStr != nil {
				endTime, err := time.Parse(time.RFC3339Nano, *endTimeStr)
				if err != nil {
					return nil, fmt.Errorf("failed to parse end_time: %w", err)
				}
				record.EndTime = &endTime
			}
		default: // MySQL and PostgreSQL
			if err := rows.Scan(&record.RunID, &record.RunUUID, &record.Title, &record.StartTime, &record.EndTime,
				&record.RunDurationMs, &record.TotalBundles, &record.ConfigParams); err != nil {
				return nil, fmt.Errorf("failed to scan report run: %w", err)
			}
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report runs: %w", err)
	}
	return results, nil
}

// GetAllBundleRecords retrieves every bundle record ordered by run and name.
func (s *Store) GetAllBundleRecords() ([]schema.BundleCoverageRecord, error) {
	if s.disabled() {
		return nil, nil
	}

	rows, err := s.db.Query(`SELECT run_id, bundle_name, record_time,
	    instruction_missed, instruction_covered, branch_missed, branch_covered,
	    line_missed, line_covered, complexity_missed, complexity_covered,
	    method_missed, method_covered, class_missed, class_covered
	    FROM ` + bundleCoverageTable + ` ORDER BY run_id, bundle_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bundle coverage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.BundleCoverageRecord
	for rows.Next() {
		var record schema.BundleCoverageRecord
		c := &record.Counters
		scan := func(dest ...any) error {
			head := []any{&record.RunID, &record.BundleName}
			tail := []any{
				&c.Instruction.Missed, &c.Instruction.Covered, &c.Branch.Missed, &c.Branch.Covered,
				&c.Line.Missed, &c.Line.Covered, &c.Complexity.Missed, &c.Complexity.Covered,
				&c.Method.Missed, &c.Method.Covered, &c.Class.Missed, &c.Class.Covered,
			}
			return rows.Scan(append(append(head, dest...), tail...)...)
		}
		if record.RecordTime, err = scanTime(scan, s.backend); err != nil {
			return nil, fmt.Errorf("failed to scan bundle coverage: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bundle coverage: %w", err)
	}
	return results, nil
}

// scanTime scans one time column through scan, parsing SQLite's text form.
func scanTime(scan func(dest ...any) error, backend schema.DatabaseBackend) (time.Time, error) {
	if backend != schema.SQLiteBackend {
		var t time.Time
		err := scan(&t)
		return t, err
	}
	var text string
	if err := scan(&text); err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, text)
}

// formatTime converts a time.Time to the appropriate format for the backend.
func formatTime(t time.Time, backend schema.DatabaseBackend) any {
	if backend == schema.SQLiteBackend {
		return t.Format(time.RFC3339Nano)
	}
	return t
}
