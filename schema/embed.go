// Package schema holds the JSON schema of the run summary log and validates
// documents against it.
package schema

import "embed"

// FS contains the embedded schema files.
//
//go:embed *.schema.json
var FS embed.FS
