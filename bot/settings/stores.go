package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/vpnbot/core/bootstrap"
)

// MemoryStore keeps values for the process lifetime only.
type MemoryStore struct {
	mu    sync.Mutex
	v     Values
	saved bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (Values, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v, m.saved, nil
}

func (m *MemoryStore) Save(_ context.Context, v Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v, m.saved = v, true
	return nil
}

// FileStore keeps values in a YAML file.
type FileStore struct {
	Path string
}

func (f FileStore) Load(context.Context) (Values, bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Values{}, false, nil
	}
	if err != nil {
		return Values{}, false, errors.Wrapf(err, "read %s", f.Path)
	}
	var v Values
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Values{}, false, errors.Wrapf(err, "decode %s", f.Path)
	}
	return v, true, nil
}

// Save writes to a temporary file and renames it over the target.
func (f FileStore) Save(_ context.Context, v Values) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrap(os.Rename(tmp, f.Path), "replace settings file")
}

const (
	keyDefaultError  = "default_error_message"
	keyAdminContacts = "admin_contacts"
)

type settingRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// PostgresStore keeps values as rows of the bot_settings table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection; the schema comes from migrations.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Load(ctx context.Context) (Values, bool, error) {
	var rows []settingRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT key, value FROM bot_settings`); err != nil {
		return Values{}, false, errors.Wrap(err, "select bot_settings")
	}
	var v Values
	for _, r := range rows {
		switch r.Key {
		case keyDefaultError:
			v.DefaultErrorMessage = r.Value
		case keyAdminContacts:
			v.AdminContacts = r.Value
		}
	}
	return v, len(rows) > 0, nil
}

func (p *PostgresStore) Save(ctx context.Context, v Values) error {
	return p.upsert(ctx, v, `
		INSERT INTO bot_settings (key, value, updated_at)
		VALUES (:key, :value, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`)
}

func (p *PostgresStore) upsert(ctx context.Context, v Values, query string) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range []settingRow{
		{Key: keyDefaultError, Value: v.DefaultErrorMessage},
		{Key: keyAdminContacts, Value: v.AdminContacts},
	} {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return errors.Wrapf(err, "upsert %s", row.Key)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Seeder inserts defaults for keys that have no row yet; edited values survive restarts.
func Seeder(defaults Values) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, storage bootstrap.Storage) error {
		db, ok := storage.(*sqlx.DB)
		if !ok || db == nil {
			return errors.Newf("settings seeder: unexpected storage %T", storage)
		}
		return NewPostgresStore(db).upsert(ctx, defaults, `
			INSERT INTO bot_settings (key, value)
			VALUES (:key, :value)
			ON CONFLICT (key) DO NOTHING`)
	})
}
