package deck

import _ "embed"

// SlidesSchema is the JSON schema of a persisted slide list.
//
//go:embed schema.json
var SlidesSchema []byte
