// Package schema embeds the JSON schemas for group.yml and target config files.
package schema

import "embed"

// FS contains the embedded schema files.
//
//go:embed *.schema.json
var FS embed.FS
