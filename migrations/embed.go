// Package migrations embeds the forward-only SQL migration files applied by
// storage.DB.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
