package database

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"
	_ "modernc.org/sqlite"

	"github.com/heluDuyne/lingolab/core"
)

// Engines
const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

//go:embed migrations/*.sql
var MigrationsFS embed.FS

const MigrationsDir = "migrations"

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	if conf.Database.Engine == EngineSQLite {
		return sql.Open(EngineSQLite, sqliteDSN(conf.Database.Path))
	}

	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sql.Open(conf.Database.Engine, u.String())
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		// only valid with a single connection, see Open
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
}

// Open opens the configured database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case EnginePostgres, EngineSQLite:
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
	}

	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Database.Engine == EngineSQLite {
		db.SetMaxOpenConns(1)
	}
	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlx.NewDb(db, conf.Database.Engine), nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	var exists bool
	err := db.QueryRow("SELECT true FROM pg_roles WHERE rolname=$1", conf.Database.User).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "checking app user")
	}

	if !exists {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sql.DB, conf *core.Config) error {
	var exists bool
	err := db.QueryRow("SELECT true FROM pg_database WHERE datname=$1", conf.Database.Name).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "checking DB")
	}

	if !exists {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the postgres app user and database. SQLite files are created on open.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.Engine != EnginePostgres {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return err
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

func gooseDialect(driverName string) string {
	if driverName == EngineSQLite {
		return "sqlite3"
	}
	return driverName
}

// RunMigrations runs a goose command (up, down, redo, status, version...) on db.
func RunMigrations(db *sqlx.DB, command string, args ...string) error {
	if err := goose.SetDialect(gooseDialect(db.DriverName())); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	if err := goose.RunFS(command, db.DB, MigrationsFS, MigrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migration %q", command)
	}
	return nil
}

func Migrate(db *sqlx.DB) error {
	return RunMigrations(db, "up")
}
