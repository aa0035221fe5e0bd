// Package migrations embeds the SQL schema migrations into the binary.
package migrations

import "embed"

// FS holds the *.sql migrations at its root; pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
