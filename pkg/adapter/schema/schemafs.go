// Package schema provides the embedded JSON schema for analyzer output.
package schema

import _ "embed"

// RecordSchema is the JSON schema a single analyzer record must satisfy.
//
//go:embed record-schema.json
var RecordSchema []byte
