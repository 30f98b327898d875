package db

import "embed"

// Migrations holds the goose migrations, they only use DDL understood by
// sqlite, libsql and mysql.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
