package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(nil, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "stock.db", cfg.DBDSN)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 7, cfg.StaleLotDays)
	assert.False(t, cfg.OffersEnabled())
}

func TestLoad_EnvThenFlags(t *testing.T) {
	// GIVEN: Environment overrides
	env := envOf(map[string]string{
		"PORT":           "9000",
		"DB_DSN":         "/tmp/x.db",
		"OFFERS_DSN":     "u:p@tcp(db:3306)/ofertas",
		"LOG_LEVEL":      "DEBUG",
		"LOG_FORMAT":     "json",
		"CORS_ORIGINS":   "http://a.test, http://b.test,",
		"STALE_LOT_DAYS": "14",
	})

	// WHEN: A flag overrides the port again
	cfg, err := load([]string{"-port", "9100"}, env)
	require.NoError(t, err)

	// THEN: Flags win over env, env over defaults
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "/tmp/x.db", cfg.DBDSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 14, cfg.StaleLotDays)
	assert.True(t, cfg.OffersEnabled())
}

func TestLoad_MySQLFromParts(t *testing.T) {
	cfg, err := load(nil, envOf(map[string]string{
		"DB_DRIVER":   "mysql",
		"DB_HOST":     "db.internal",
		"DB_USER":     "stock",
		"DB_PASSWORD": "secret",
		"DB_NAME":     "chipiona",
	}))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Contains(t, cfg.DBDSN, "stock:secret@tcp(db.internal:3306)/chipiona")

	cfg, err = load(nil, envOf(map[string]string{
		"DB_DRIVER": "mysql",
		"DB_HOST":   "/var/run/mysqld/mysqld.sock",
		"DB_USER":   "stock",
		"DB_NAME":   "chipiona",
	}))
	require.NoError(t, err)
	assert.Contains(t, cfg.DBDSN, "unix(/var/run/mysqld/mysqld.sock)")
}

func TestLoad_Invalid(t *testing.T) {
	_, err := load(nil, envOf(map[string]string{"DB_DRIVER": "postgres"}))
	assert.Error(t, err)

	_, err = load(nil, envOf(map[string]string{"PORT": "eighty"}))
	assert.Error(t, err)

	_, err = load([]string{"-log-format", "xml"}, envOf(nil))
	assert.Error(t, err)

	_, err = load([]string{"-unknown"}, envOf(nil))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	_, err = NewLogger("loud", "text")
	assert.Error(t, err)
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	LogError(logger, "api", "POST /api/allocations", map[string]string{"request_id": "r1"}, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"module":"api"`)
	assert.Contains(t, out, `"op":"POST /api/allocations"`)
	assert.Contains(t, out, `"msg":"boom"`)
	assert.Contains(t, out, `"level":"error"`)
}
