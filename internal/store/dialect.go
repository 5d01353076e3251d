package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

type dialect struct {
	driver    string
	createDDL string
	pragmas   []string
	// versionQuery reports the engine name and version as one string.
	versionQuery string
	// prepare turns the configured DSN into the driver DSN, creating
	// whatever has to exist on disk first.
	prepare func(dsn string) (string, error)
}

var dialects = map[string]dialect{
	DriverSQLite: {
		driver: DriverSQLite,
		createDDL: `CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    done INTEGER NOT NULL DEFAULT 0,
    createdAt TEXT NOT NULL
)`,
		pragmas: []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA synchronous=FULL;",
		},
		versionQuery: `SELECT 'sqlite ' || sqlite_version()`,
		prepare:      sqliteDSN,
	},
	DriverMySQL: {
		driver: DriverMySQL,
		createDDL: `CREATE TABLE IF NOT EXISTS tasks (
    id VARCHAR(191) PRIMARY KEY,
    title TEXT NOT NULL,
    done TINYINT(1) NOT NULL DEFAULT 0,
    createdAt VARCHAR(64) NOT NULL
)`,
		versionQuery: `SELECT CONCAT('mysql ', VERSION())`,
		prepare:      mysqlDSN,
	},
}

func lookupDialect(driver string) (dialect, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	d, ok := dialects[strings.ToLower(driver)]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported store driver %q", driver)
	}
	return d, nil
}

// sqliteDSN creates the parent directory of the database file and appends
// the connection parameters the store relies on.
func sqliteDSN(dsn string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("sqlite path is required")
	}
	path, query, _ := strings.Cut(dsn, "?")
	file := strings.TrimPrefix(path, "file:")
	if file != ":memory:" && !strings.HasPrefix(query, "mode=memory") {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return "", fmt.Errorf("create db directory: %w", err)
		}
	}
	params := "_busy_timeout=5000&_txlock=immediate"
	if query != "" {
		return path + "?" + query + "&" + params, nil
	}
	return path + "?" + params, nil
}

func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	return cfg.FormatDSN(), nil
}
