// Package migrations embeds the SQL schema so the binary can migrate the
// database on startup without shipping the files separately.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
