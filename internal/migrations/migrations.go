// Package migrations embeds the goose SQL migrations of the safes registry.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
