// Package migrations embeds the SQL schema applied at startup.
package migrations

import "embed"

// Dir is the directory inside FS holding the migration files.
const Dir = "."

// FS holds the *.up.sql / *.down.sql migration pairs.
//
//go:embed *.sql
var FS embed.FS
