package persist

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"smartalarm/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/smartalarm?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS alarm_state (
			key TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (s *postgresStore) SaveAlarms(ctx context.Context, alarms []model.Alarm) error {
	if s.db == nil {
		return nil
	}
	data, err := encodeAlarms(alarms)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alarm_state (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		stateKey, data)
	return err
}

func (s *postgresStore) LoadAlarms(ctx context.Context) ([]model.Alarm, error) {
	if s.db == nil {
		return []model.Alarm{}, nil
	}
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM alarm_state WHERE key = $1`, stateKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []model.Alarm{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAlarms(data)
}
