// Package migrations embeds the PostgreSQL schema applied by `cardmarket migrate`.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
