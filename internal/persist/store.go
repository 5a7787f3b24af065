package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"smartalarm/internal/config"
	"smartalarm/internal/model"
)

// stateKey is the single key the alarm collection is stored under. The
// persisted layout is an opaque JSON array; no schema versioning is done.
const stateKey = "smart_alarms"

// Store persists the full alarm collection as one blob. Load returns an
// empty slice when nothing was ever saved.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlarms(ctx context.Context, alarms []model.Alarm) error
	LoadAlarms(ctx context.Context) ([]model.Alarm, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeAlarms(alarms []model.Alarm) (string, error) {
	if alarms == nil {
		alarms = []model.Alarm{}
	}
	data, err := json.Marshal(alarms)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeAlarms(data string) ([]model.Alarm, error) {
	var alarms []model.Alarm
	if err := json.Unmarshal([]byte(data), &alarms); err != nil {
		return nil, err
	}
	return alarms, nil
}
