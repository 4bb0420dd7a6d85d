package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"hostfeed/internal/logging"
	"hostfeed/internal/models"
)

const samplesSchema = `
CREATE TABLE IF NOT EXISTS stats (
	ts   INTEGER PRIMARY KEY,
	cpu  REAL,
	ram  REAL,
	disk REAL,
	temp REAL
);`

// samplePoolSize covers one writer plus a concurrent reader.
const samplePoolSize = 2

// SampleStore keeps the resource time series in SQLite, one row per
// second keyed by Unix timestamp.
type SampleStore struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// OpenSampleStore opens (creating if needed) the sample database at path.
func OpenSampleStore(path string, logger *slog.Logger) (*SampleStore, error) {
	logger = logging.OrDiscard(logger)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    samplePoolSize,
		PrepareConn: prepareSampleConn,
	})
	if err != nil {
		return nil, fmt.Errorf("open sample store %s: %w", path, err)
	}
	logger.Debug("sample store opened", "path", path)

	return &SampleStore{pool: pool, path: path, logger: logger}, nil
}

func prepareSampleConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, samplesSchema, nil); err != nil {
		return fmt.Errorf("create stats table: %w", err)
	}
	return nil
}

// Put upserts sample and deletes every row older than cutoff (Unix
// seconds) in one IMMEDIATE transaction. It returns the number of pruned rows.
func (s *SampleStore) Put(ctx context.Context, sample models.MetricSample, cutoff int64) (pruned int, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("sample store: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("sample store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var temp any
	if sample.Temp != nil {
		temp = *sample.Temp
	}
	err = sqlitex.Execute(conn,
		"INSERT OR REPLACE INTO stats (ts, cpu, ram, disk, temp) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{sample.Timestamp, sample.CPU, sample.RAM, sample.Disk, temp}})
	if err != nil {
		return 0, fmt.Errorf("sample store: insert sample: %w", err)
	}

	err = sqlitex.Execute(conn, "DELETE FROM stats WHERE ts < ?", &sqlitex.ExecOptions{Args: []any{cutoff}})
	if err != nil {
		return 0, fmt.Errorf("sample store: prune samples: %w", err)
	}
	return conn.Changes(), nil
}

// List returns every stored sample, oldest first.
func (s *SampleStore) List(ctx context.Context) ([]models.MetricSample, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample store: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var samples []models.MetricSample
	err = sqlitex.Execute(conn, "SELECT ts, cpu, ram, disk, temp FROM stats ORDER BY ts", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sample := models.MetricSample{
				Timestamp: stmt.ColumnInt64(0),
				CPU:       stmt.ColumnFloat(1),
				RAM:       stmt.ColumnFloat(2),
				Disk:      stmt.ColumnFloat(3),
			}
			if stmt.ColumnType(4) != sqlite.TypeNull {
				temp := stmt.ColumnFloat(4)
				sample.Temp = &temp
			}
			samples = append(samples, sample)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sample store: list samples: %w", err)
	}
	return samples, nil
}

// Close releases the connection pool.
func (s *SampleStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("close sample store %s: %w", s.path, err)
	}
	s.logger.Debug("sample store closed", "path", s.path)
	return nil
}
