package answer

import "context"

// Source loads the full answer table from an input location.  Implementations
// live in the ingest layer (delimited files) and are expected to skip
// malformed rows rather than fail the whole load.
type Source interface {
	ReadAll(ctx context.Context) ([]*Answer, error)
}
