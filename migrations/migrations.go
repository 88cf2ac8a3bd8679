// Package migrations embeds the SQL schema migrations so the service and the
// migrate binary carry them without a filesystem dependency.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
