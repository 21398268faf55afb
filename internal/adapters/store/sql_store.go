package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/phish-detector/internal/core"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS analysis_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email_text TEXT NOT NULL,
		prediction TEXT NOT NULL,
		confidence REAL NOT NULL,
		analysis_timestamp TEXT NOT NULL
	)
`

const mysqlSchema = `
	CREATE TABLE IF NOT EXISTS analysis_results (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email_text LONGTEXT NOT NULL,
		prediction VARCHAR(32) NOT NULL,
		confidence DOUBLE NOT NULL,
		analysis_timestamp VARCHAR(19) NOT NULL
	) CHARACTER SET utf8mb4
`

// SQLStore is a database/sql implementation of the ResultStore interface.
// Every call opens its own connection and closes it before returning.
type SQLStore struct {
	kind   string
	driver string
	dsn    string
	schema string
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a result store backed by mattn/go-sqlite3 (cgo)
func NewSQLiteStore(path string, busyTimeout time.Duration, logger *zap.Logger) *SQLStore {
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeout.Milliseconds())
	return newSQLStore("sqlite", "sqlite3", dsn, sqliteSchema, logger)
}

// NewPureSQLiteStore creates a result store backed by modernc.org/sqlite, which needs no cgo
func NewPureSQLiteStore(path string, busyTimeout time.Duration, logger *zap.Logger) *SQLStore {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeout.Milliseconds())
	return newSQLStore("sqlite-pure", "sqlite", dsn, sqliteSchema, logger)
}

// NewMySQLStore creates a result store backed by MySQL
func NewMySQLStore(dsn string, logger *zap.Logger) *SQLStore {
	return newSQLStore("mysql", "mysql", dsn, mysqlSchema, logger)
}

func newSQLStore(kind, driver, dsn, schema string, logger *zap.Logger) *SQLStore {
	return &SQLStore{
		kind:   kind,
		driver: driver,
		dsn:    dsn,
		schema: schema,
		logger: logger,
		now:    time.Now,
	}
}

// Kind returns the configured store type
func (s *SQLStore) Kind() string {
	return s.kind
}

// withDB opens a connection, runs fn and always closes the connection
func (s *SQLStore) withDB(ctx context.Context, fn func(db *sql.DB) error) error {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", s.kind, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			s.logger.Warn("Failed to close database", zap.String("store", s.kind), zap.Error(err))
		}
	}()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", s.kind, err)
	}
	return fn(db)
}

// EnsureSchema creates the analysis_results table if it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	return s.withDB(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, s.schema); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
		s.logger.Debug("Result store schema ready", zap.String("store", s.kind))
		return nil
	})
}

// Append inserts one analysis record in its own implicit transaction
func (s *SQLStore) Append(ctx context.Context, text string, prediction string, confidence float64) (*core.AnalysisRecord, error) {
	if err := validateRecord(prediction, confidence); err != nil {
		return nil, err
	}

	record := &core.AnalysisRecord{
		EmailText:  text,
		Prediction: prediction,
		Confidence: confidence,
		Timestamp:  s.now().Local().Format(core.TimestampLayout),
	}

	err := s.withDB(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `
			INSERT INTO analysis_results (email_text, prediction, confidence, analysis_timestamp)
			VALUES (?, ?, ?, ?)
		`, record.EmailText, record.Prediction, record.Confidence, record.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert analysis record: %w", err)
		}

		record.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read record id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorageWrite, err)
	}

	s.logger.Debug("Stored analysis record",
		zap.String("store", s.kind),
		zap.Int64("id", record.ID),
		zap.String("prediction", record.Prediction))
	return record, nil
}

// Recent returns up to limit records, newest first. A limit of zero or less returns every record.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]core.AnalysisRecord, error) {
	query := `
		SELECT id, email_text, prediction, confidence, analysis_timestamp
		FROM analysis_results
		ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var records []core.AnalysisRecord
	err := s.withDB(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query analysis records: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r core.AnalysisRecord
			if err := rows.Scan(&r.ID, &r.EmailText, &r.Prediction, &r.Confidence, &r.Timestamp); err != nil {
				return fmt.Errorf("failed to scan analysis record: %w", err)
			}
			records = append(records, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func validateRecord(prediction string, confidence float64) error {
	if prediction == "" {
		return fmt.Errorf("%w: empty prediction", core.ErrStorageWrite)
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", core.ErrStorageWrite, confidence)
	}
	return nil
}
