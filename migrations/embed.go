// Package migrations embeds the SQL migration files into the binary.
//
// Pass FS to database.DB.Migrate at startup; "webthing migrate-down" rolls
// the newest one back.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
