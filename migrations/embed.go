// Package migrations embeds the bridge's SQL migration files into the
// binary, so migrations run without the SQL files present on the
// filesystem.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var migrationsFS embed.FS

// FS returns the embedded migration files as a filesystem rooted at the
// directory containing them.
func FS() fs.FS {
	return migrationsFS
}
