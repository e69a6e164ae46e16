package schema

import "errors"

// ErrNotAvailable means the catalog had no value for a row count or size
// lookup. It is "no data", not a failed lookup.
var ErrNotAvailable = errors.New("not available in catalog")
