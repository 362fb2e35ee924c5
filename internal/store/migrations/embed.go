// Package migrations holds the schema migrations applied by store.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
