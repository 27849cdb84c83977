// Package migrations embeds the MySQL schema for the proof job store.
// Files are named <version>_<name>.sql and applied in version order.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
