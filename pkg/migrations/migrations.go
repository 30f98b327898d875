package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"pys-backend/internal/db"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	DriverSqlite = "sqlite"
	DriverLibsql = "libsql"
	DriverMysql  = "mysql"
)

// Config selects and locates the database, only the fields of the chosen
// driver are read.
type Config struct {
	Driver string `json:"driver" validate:"omitempty,oneof=sqlite libsql mysql"`
	// File is the sqlite database path, ":memory:" is allowed.
	File string `json:"file"`
	// Url and AuthToken locate a libsql (turso) database.
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
	// Dsn is a go-sql-driver/mysql data source name.
	Dsn string `json:"dsn"`
}

func (c Config) driver() string {
	if c.Driver == "" {
		return DriverSqlite
	}
	return c.Driver
}

func (c Config) dialect() goose.Dialect {
	if c.driver() == DriverMysql {
		return goose.DialectMySQL
	}
	return goose.DialectSQLite3
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens a local sqlite database.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0755)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	database.SetMaxOpenConns(1)
	_, err = database.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		database.Close()
		return nil, wrapOpenDB(err)
	}

	return database, nil
}

// Open opens the configured database without migrating it.
func (c Config) Open() (*sql.DB, error) {
	switch c.driver() {
	case DriverSqlite:
		if c.File == "" {
			return nil, wrapOpenDB(fmt.Errorf("a sqlite file was not specified"))
		}
		return OpenDB(c.File)
	case DriverLibsql:
		if c.Url == "" {
			return nil, wrapOpenDB(fmt.Errorf("a libsql url was not specified"))
		}
		dbUrl, err := url.Parse(c.Url)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		if c.AuthToken != "" {
			query := dbUrl.Query()
			query.Set("authToken", c.AuthToken)
			dbUrl.RawQuery = query.Encode()
		}
		database, err := sql.Open("libsql", dbUrl.String())
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		return database, nil
	case DriverMysql:
		if c.Dsn == "" {
			return nil, wrapOpenDB(fmt.Errorf("a mysql dsn was not specified"))
		}
		database, err := sql.Open("mysql", c.Dsn)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		return database, nil
	default:
		return nil, wrapOpenDB(fmt.Errorf("unknown driver '%s'", c.Driver))
	}
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, database *sql.DB, dialect goose.Dialect) error {
	fsys, err := fs.Sub(db.Migrations, db.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	provider, err := goose.NewProvider(dialect, database, fsys)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	_, err = provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// OpenAndMigrate opens the configured database and brings its schema up to date.
func (c Config) OpenAndMigrate(ctx context.Context) (*sql.DB, error) {
	database, err := c.Open()
	if err != nil {
		return nil, err
	}
	err = Migrate(ctx, database, c.dialect())
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
