package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func TestListMigrationFilesFiltersUpScripts(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_offers.up.sql":         {Data: []byte("--")},
		"sql/0001_bot_settings.up.sql":   {Data: []byte("--")},
		"sql/0001_bot_settings.down.sql": {Data: []byte("--")},
		"sql/README.md":                  {Data: []byte("x")},
	}
	files := scanMigrations(fsys, "sql")
	assert.Equal(t, []migrationFile{
		{name: "0001_bot_settings.up.sql", version: 1},
		{name: "0002_offers.up.sql", version: 2},
	}, files)
	assert.Equal(t, "0002_offers.up.sql", latest(files))
	assert.Empty(t, scanMigrations(fsys, "missing"))
}

func TestBetweenVersions(t *testing.T) {
	files := []migrationFile{{"0001_a.up.sql", 1}, {"0002_b.up.sql", 2}, {"0003_c.up.sql", 3}}
	assert.Len(t, between(files, 1, 3), 2)
	assert.Empty(t, between(files, 3, 3))
	assert.Equal(t, []migrationFile{{"0001_a.up.sql", 1}}, between(files, 0, 1))
}

func TestConfigURLEscapesCredentials(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss/word", Name: "vpn"}
	assert.Equal(t, "postgres://bot:p%40ss%2Fword@db:5432/vpn?sslmode=disable", cfg.URL())
	assert.Contains(t, cfg.DSN(), "sslmode=disable")
	assert.True(t, cfg.Enabled())
	assert.False(t, Config{}.Enabled())
}
