package tempo

import "github.com/pkg/errors"

// Per-granule failures. The orchestrator downgrades any of these to a Skip.
var (
	ErrMissingCoordinate  = errors.New("latitude/longitude coordinates not found")
	ErrUnresolvedVariable = errors.New("main quantity could not be resolved")
	ErrTimestamp          = errors.New("granule timestamp could not be resolved")
	ErrIO                 = errors.New("netcdf read failure")
	ErrDimensionMismatch  = errors.New("array dimensions do not match coordinates")
)

// Batch-fatal failures.
var (
	ErrNoInputFiles = errors.New("no input files")
	ErrNoGranules   = errors.New("no granule could be processed")
)

// Skip records a granule that was dropped from the batch.
type Skip struct {
	File string
	Err  error
}

func (s Skip) Error() string {
	return s.File + ": " + s.Err.Error()
}
