package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/config"
)

type sqliteDBService struct {
	CfgSvc config.IService
	conn   *sql.DB
}

// NewSqliteDB opens (and migrates) the sqlite database at the configured path.
func NewSqliteDB(cfgsvc config.IService) (IService, error) {
	dbPath := cfgsvc.GetSqlitePath()
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database folder: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	svc := &sqliteDBService{CfgSvc: cfgsvc, conn: conn}

	if err := svc.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return svc, nil
}

func (svc *sqliteDBService) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		processor TEXT NOT NULL,
		inner_error TEXT,
		message TEXT,
		stack_trace TEXT,
		misc TEXT
	);

	CREATE TABLE IF NOT EXISTS session_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		mode TEXT NOT NULL,
		target TEXT NOT NULL,
		ticks INTEGER DEFAULT 0,
		frames INTEGER DEFAULT 0,
		capture_errors INTEGER DEFAULT 0,
		dispatched INTEGER DEFAULT 0,
		applied INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		stale INTEGER DEFAULT 0,
		uptime INTEGER DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dispatcher_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		submitted INTEGER DEFAULT 0,
		completed INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		abandoned INTEGER DEFAULT 0,
		dropped INTEGER DEFAULT 0,
		in_flight INTEGER DEFAULT 0,
		peak_in_flight INTEGER DEFAULT 0,
		avg_latency REAL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS count_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		mode TEXT NOT NULL,
		count INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_count_samples_timestamp ON count_samples(timestamp);
	CREATE INDEX IF NOT EXISTS idx_session_stats_session ON session_stats(session);
	`

	_, err := svc.conn.Exec(query)
	return err
}

func (svc *sqliteDBService) NewError(err interface{}) error {
	record := toErrorRecord(err, time.Now().Unix())

	misc, mErr := json.Marshal(record.Misc)
	if mErr != nil {
		misc = []byte("{}")
	}

	_, execErr := svc.conn.Exec(
		`INSERT INTO errors (timestamp, processor, inner_error, message, stack_trace, misc) VALUES (?, ?, ?, ?, ?, ?)`,
		record.Timestamp, record.Processor, record.Inner, record.Message, record.StackTrace, string(misc),
	)
	return execErr
}

func (svc *sqliteDBService) NewSessionStats(stats model.SessionStats) error {
	stats.Timestamp = time.Now().Unix()
	_, err := svc.conn.Exec(
		`INSERT INTO session_stats (session, mode, target, ticks, frames, capture_errors, dispatched, applied, failures, stale, uptime, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.ID, string(stats.Mode), stats.Target, stats.Ticks, stats.Frames, stats.CaptureErrors,
		stats.Dispatched, stats.Applied, stats.Failures, stats.Stale, stats.Uptime, stats.Timestamp,
	)
	return err
}

func (svc *sqliteDBService) NewDispatcherStats(stats model.DispatcherStats) error {
	stats.Timestamp = time.Now().Unix()
	_, err := svc.conn.Exec(
		`INSERT INTO dispatcher_stats (session, submitted, completed, failed, abandoned, dropped, in_flight, peak_in_flight, avg_latency, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.Session, stats.Submitted, stats.Completed, stats.Failed, stats.Abandoned, stats.Dropped,
		stats.InFlight, stats.PeakInFlight, stats.AvgLatency, stats.Timestamp,
	)
	return err
}

func (svc *sqliteDBService) NewCountSample(sample model.CountSample) error {
	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().Unix()
	}
	_, err := svc.conn.Exec(
		`INSERT INTO count_samples (session, mode, count, timestamp) VALUES (?, ?, ?, ?)`,
		sample.Session, string(sample.Mode), sample.Count, sample.Timestamp,
	)
	return err
}

// RetrieveCountSamples returns the most recent samples, newest first.
func (svc *sqliteDBService) RetrieveCountSamples(limit int) ([]model.CountSample, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := svc.conn.Query(
		`SELECT session, mode, count, timestamp FROM count_samples ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := []model.CountSample{}
	for rows.Next() {
		var sample model.CountSample
		var mode string
		if err := rows.Scan(&sample.Session, &mode, &sample.Count, &sample.Timestamp); err != nil {
			return nil, err
		}
		sample.Mode = model.Mode(mode)
		samples = append(samples, sample)
	}

	return samples, rows.Err()
}

func (svc *sqliteDBService) Close() error {
	return svc.conn.Close()
}
