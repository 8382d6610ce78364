/*
Package config loads server configuration and builds the logger.

PRECEDENCE (lowest to highest):
  1. Built-in defaults
  2. .env file in the working directory (optional)
  3. Environment variables
  4. Command-line flags

ENVIRONMENT:
  PORT            HTTP port (8080)
  DB_DRIVER       sqlite3 | mysql (sqlite3)
  DB_DSN          driver DSN (stock.db)
  DB_USER, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME
                  MySQL connection parts, used when DB_DRIVER=mysql and
                  DB_DSN is unset
  OFFERS_DRIVER   offers datastore driver (mysql)
  OFFERS_DSN      offers datastore DSN; empty disables the offer mirror
  LOG_LEVEL       logrus level (info)
  LOG_FORMAT      text | json (text)
  CORS_ORIGINS    comma separated allowed origins (*)
  STALE_LOT_DAYS  age after which exhausted lots are flagged (7)
*/
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

type Config struct {
	Port         int      `validate:"min=1,max=65535"`
	DBDriver     string   `validate:"oneof=sqlite3 mysql"`
	DBDSN        string   `validate:"required"`
	OffersDriver string   `validate:"omitempty,oneof=sqlite3 mysql"`
	OffersDSN    string
	LogLevel     string   `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat    string   `validate:"oneof=text json"`
	CORSOrigins  []string `validate:"min=1"`
	StaleLotDays int      `validate:"min=1"`
}

// OffersEnabled reports whether reservations are mirrored as offers.
func (c *Config) OffersEnabled() bool { return c.OffersDSN != "" }

func defaults() Config {
	return Config{
		Port:         8080,
		DBDriver:     "sqlite3",
		DBDSN:        "stock.db",
		OffersDriver: "mysql",
		LogLevel:     "info",
		LogFormat:    "text",
		CORSOrigins:  []string{"*"},
		StaleLotDays: 7,
	}
}

// Load resolves the configuration for the given command-line arguments
// (without the program name).
func Load(args []string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return load(args, os.Getenv)
}

func load(args []string, getenv func(string) string) (*Config, error) {
	cfg := defaults()
	if err := applyEnv(&cfg, getenv); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "database driver (sqlite3, mysql)")
	fs.StringVar(&cfg.DBDSN, "db", cfg.DBDSN, `database DSN; ":memory:" for in-memory sqlite`)
	fs.StringVar(&cfg.OffersDSN, "offers-db", cfg.OffersDSN, "offers datastore DSN (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := getenv("DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := getenv("DB_DSN"); v != "" {
		cfg.DBDSN = v
	} else if cfg.DBDriver == "mysql" && getenv("DB_HOST") != "" {
		cfg.DBDSN = mysqlDSN(getenv)
	}
	if v := getenv("OFFERS_DRIVER"); v != "" {
		cfg.OffersDriver = v
	}
	cfg.OffersDSN = getenv("OFFERS_DSN")
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSOrigins = origins
	}
	if v := getenv("STALE_LOT_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STALE_LOT_DAYS: %w", err)
		}
		cfg.StaleLotDays = days
	}
	return nil
}

// mysqlDSN assembles a DSN from DB_* parts. A DB_HOST starting with "/"
// is a unix socket.
func mysqlDSN(getenv func(string) string) string {
	mc := mysql.NewConfig()
	mc.User = getenv("DB_USER")
	mc.Passwd = getenv("DB_PASSWORD")
	mc.DBName = getenv("DB_NAME")
	host := getenv("DB_HOST")
	if strings.HasPrefix(host, "/") {
		mc.Net = "unix"
		mc.Addr = host
	} else {
		mc.Net = "tcp"
		port := getenv("DB_PORT")
		if port == "" {
			port = "3306"
		}
		mc.Addr = host + ":" + port
	}
	return mc.FormatDSN()
}
