// Package migrations embeds the client-side SQLite schema migrations,
// applied with goose at engine start.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
