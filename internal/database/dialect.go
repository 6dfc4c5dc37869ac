package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"flowscan/internal/config"
	"flowscan/internal/schema"
)

// statement is one provisioning step.
type statement struct {
	step  string
	query string
}

// dialect isolates the SQL differences between the relational engines.
type dialect interface {
	name() string
	open(cfg config.DatabaseConfig, timeout time.Duration) (*sql.DB, error)
	// table returns the quoted, database-qualified table name.
	table(dbName, table string) string
	quote(ident string) string
	// provision returns the DDL that discards prior state and recreates the catalog.
	provision(dbName string, tables []schema.Table) []statement
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "mysql", "":
		return mysqlDialect{}, nil
	case "sqlite":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown sql driver: %q", driver)
	}
}

// insertQuery renders a parameterized INSERT for every column of t.
func insertQuery(d dialect, dbName string, t schema.Table) string {
	cols := make([]string, len(t.Fields))
	marks := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = d.quote(f.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.table(dbName, t.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// createTable renders a CREATE TABLE using colType for each field.
func createTable(d dialect, dbName string, t schema.Table, colType func(schema.Field) string, suffix string) string {
	defs := make([]string, 0, len(t.Fields)+1)
	var refs []string
	for _, f := range t.Fields {
		defs = append(defs, d.quote(f.Name)+" "+colType(f))
		if f.Kind == schema.KindRef {
			refs = append(refs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
				d.quote(f.Name), d.table(dbName, f.References), d.quote("id")))
		}
	}
	defs = append(defs, refs...)
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)%s", d.table(dbName, t.Name), strings.Join(defs, ",\n\t"), suffix)
}

// mysqlDialect targets a MySQL/MariaDB server. The configured database is dropped and
// recreated by Setup; tables are addressed by qualified name so any pooled connection works.
type mysqlDialect struct{}

func (mysqlDialect) name() string { return "mysql" }

func (mysqlDialect) open(cfg config.DatabaseConfig, timeout time.Duration) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host
	mc.Timeout = timeout

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (d mysqlDialect) table(dbName, table string) string {
	return d.quote(dbName) + "." + d.quote(table)
}

func (mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d mysqlDialect) provision(dbName string, tables []schema.Table) []statement {
	stmts := []statement{
		{step: "drop database", query: "DROP DATABASE IF EXISTS " + d.quote(dbName)},
		{step: "create database", query: "CREATE DATABASE " + d.quote(dbName) + " CHARACTER SET utf8mb4"},
	}
	for _, t := range tables {
		stmts = append(stmts, statement{
			step:  "create table " + t.Name,
			query: createTable(d, dbName, t, mysqlColumnType, " ENGINE=InnoDB"),
		})
	}
	return stmts
}

func mysqlColumnType(f schema.Field) string {
	switch f.Kind {
	case schema.KindKey:
		return "VARCHAR(64) NOT NULL PRIMARY KEY"
	case schema.KindRef:
		return "VARCHAR(64) NOT NULL"
	case schema.KindText:
		return "TEXT"
	case schema.KindLongText:
		return "LONGTEXT"
	case schema.KindUint:
		return "BIGINT UNSIGNED NOT NULL DEFAULT 0"
	case schema.KindBool:
		return "BOOLEAN NOT NULL DEFAULT FALSE"
	case schema.KindFloat:
		return "DOUBLE"
	case schema.KindTime:
		return "DATETIME"
	default:
		return "VARCHAR(255)"
	}
}

// sqliteDialect stores the database in <host>/<database_name>.db, or in memory when host
// is empty or ":memory:". Setup drops and recreates every catalog table.
type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) open(cfg config.DatabaseConfig, _ time.Duration) (*sql.DB, error) {
	path := ":memory:"
	if cfg.Host != "" && cfg.Host != ":memory:" {
		if err := os.MkdirAll(cfg.Host, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		path = filepath.Join(cfg.Host, cfg.DatabaseName+".db")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; keep exactly one.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

func (d sqliteDialect) table(_, table string) string { return d.quote(table) }

func (sqliteDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d sqliteDialect) provision(dbName string, tables []schema.Table) []statement {
	var stmts []statement
	for i := len(tables) - 1; i >= 0; i-- {
		stmts = append(stmts, statement{
			step:  "drop table " + tables[i].Name,
			query: "DROP TABLE IF EXISTS " + d.table(dbName, tables[i].Name),
		})
	}
	for _, t := range tables {
		stmts = append(stmts, statement{
			step:  "create table " + t.Name,
			query: createTable(d, dbName, t, sqliteColumnType, ""),
		})
	}
	return stmts
}

func sqliteColumnType(f schema.Field) string {
	switch f.Kind {
	case schema.KindKey:
		return "TEXT NOT NULL PRIMARY KEY"
	case schema.KindRef:
		return "TEXT NOT NULL"
	case schema.KindUint:
		return "INTEGER NOT NULL DEFAULT 0"
	case schema.KindBool:
		return "BOOLEAN NOT NULL DEFAULT 0"
	case schema.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}
