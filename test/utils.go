// Package test holds helpers shared by package tests.
package test

import (
	"context"
	"database/sql"
	"testing"

	"pys-backend/internal/db"
	"pys-backend/pkg/migrations"

	"github.com/pressly/goose/v3"
)

// OpenInMemoryDB returns a migrated in-memory sqlite database that is closed
// with the test.
func OpenInMemoryDB(t testing.TB) *sql.DB {
	database, err := migrations.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	err = migrations.Migrate(context.Background(), database, goose.DialectSQLite3)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// OpenQueries is OpenInMemoryDB wrapped in the query and transaction helpers.
func OpenQueries(t testing.TB) (*sql.DB, *db.Queries, db.MakeTx) {
	database := OpenInMemoryDB(t)
	return database, db.New(database), db.NewMakeTx(database)
}
