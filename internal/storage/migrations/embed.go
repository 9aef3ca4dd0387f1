// Package migrations holds the SQLite schema.
package migrations

import "embed"

// FS embeds the numbered SQL migration files.
//
//go:embed *.sql
var FS embed.FS
