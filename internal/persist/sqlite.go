package persist

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"smartalarm/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:smartalarm.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS alarm_state (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`)
	return err
}

func (s *sqliteStore) SaveAlarms(ctx context.Context, alarms []model.Alarm) error {
	if s.db == nil {
		return nil
	}
	data, err := encodeAlarms(alarms)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alarm_state (key, data, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		stateKey, data)
	return err
}

func (s *sqliteStore) LoadAlarms(ctx context.Context) ([]model.Alarm, error) {
	if s.db == nil {
		return []model.Alarm{}, nil
	}
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM alarm_state WHERE key = ?`, stateKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []model.Alarm{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAlarms(data)
}
