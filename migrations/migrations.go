// Package migrations embeds the SQL schema migrations so the migrate tool
// and integration tests apply the same files.
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
