// Package migrations embeds the SQL schema files for the order engine.
package migrations

import "embed"

// FS holds every *.up.sql file, applied in name order by database.RunMigrations.
//
//go:embed *.up.sql
var FS embed.FS
