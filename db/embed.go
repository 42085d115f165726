// Package db embeds the SQL migrations.
package db

import (
	"embed"
	"io/fs"
)

//go:embed postgres/migrations/*.sql
var migrations embed.FS

// PostgresMigrations returns the Postgres migration files at the root of the FS.
func PostgresMigrations() fs.FS {
	sub, err := fs.Sub(migrations, "postgres/migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
