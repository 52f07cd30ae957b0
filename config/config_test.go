package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("TEST_DB_HOST", "localhost")
	t.Setenv("TEST_DB_PORT", "5432")
	t.Setenv("TEST_DB_SSL", "true")

	provider := NewEnvProvider("TEST_")
	ctx := context.Background()

	assert.Equal(t, Development, provider.GetEnvironment())

	host, err := provider.GetString(ctx, "DB_HOST")
	assert.NoError(t, err)
	assert.Equal(t, "localhost", host)

	port, err := provider.GetInt(ctx, "DB_PORT")
	assert.NoError(t, err)
	assert.Equal(t, 5432, port)

	ssl, err := provider.GetBool(ctx, "DB_SSL")
	assert.NoError(t, err)
	assert.True(t, ssl)

	_, err = provider.GetString(ctx, "MISSING")
	assert.Error(t, err)
}

func TestDatabaseConfigValidate(t *testing.T) {
	valid := DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "app",
		Password: "secret",
		DBName:   "arbor",
		SSLMode:  "disable",
	}

	assert.NoError(t, valid.Validate(Development))

	cases := []struct {
		name   string
		mutate func(c *DatabaseConfig)
		field  string
	}{
		{"empty host", func(c *DatabaseConfig) { c.Host = "" }, "Host"},
		{"bad port", func(c *DatabaseConfig) { c.Port = 0 }, "Port"},
		{"empty user", func(c *DatabaseConfig) { c.User = "" }, "User"},
		{"empty password", func(c *DatabaseConfig) { c.Password = "" }, "Password"},
		{"empty db name", func(c *DatabaseConfig) { c.DBName = "" }, "DBName"},
		{"bad db name", func(c *DatabaseConfig) { c.DBName = "1bad" }, "DBName"},
		{"bad ssl mode", func(c *DatabaseConfig) { c.SSLMode = "sometimes" }, "SSLMode"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate(Development)
			assert.Error(t, err)
			var vErr *ValidationError
			if assert.ErrorAs(t, err, &vErr) {
				assert.Equal(t, tc.field, vErr.Field)
			}
		})
	}
}

func TestDatabaseConfigValidateProduction(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "app",
		Password: "secret",
		DBName:   "arbor",
		SSLMode:  "disable",
	}

	// Weak password rejected in production
	cfg.SSLMode = "require"
	assert.Error(t, cfg.Validate(Production))

	cfg.Password = "Str0ng-Enough-Pass!"
	assert.NoError(t, cfg.Validate(Production))

	// SSL may not be disabled in production
	cfg.SSLMode = "disable"
	assert.Error(t, cfg.Validate(Production))
}

func TestGetTreeConfig(t *testing.T) {
	ctx := context.Background()
	provider := NewEnvProvider("")

	// Defaults apply when nothing is set
	cfg, err := GetTreeConfig(ctx, provider)
	assert.NoError(t, err)
	assert.Equal(t, "nodes", cfg.Table)
	assert.Equal(t, "label", cfg.LabelColumn)

	t.Setenv("TREE_TABLE", "categories")
	t.Setenv("TREE_LABEL_COLUMN", "name")
	cfg, err = GetTreeConfig(ctx, provider)
	assert.NoError(t, err)
	assert.Equal(t, "categories", cfg.Table)
	assert.Equal(t, "name", cfg.LabelColumn)

	// Rejects values that are not SQL identifiers
	t.Setenv("TREE_TABLE", "nodes; DROP TABLE nodes")
	_, err = GetTreeConfig(ctx, provider)
	assert.Error(t, err)
}
