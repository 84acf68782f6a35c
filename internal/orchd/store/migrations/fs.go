// Package migrations embeds the SQL migration files applied to a fresh
// or existing orchd sqlite database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
