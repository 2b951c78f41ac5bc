// Package migrations embeds the SQL migration files into the binary.
//
// Pass FS to database.DB.Migrate with Dir:
//
//	db.Migrate(ctx, migrations.FS, migrations.Dir)
package migrations

import "embed"

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory within FS containing the migrations.
const Dir = "."
