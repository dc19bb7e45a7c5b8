package constants

import "time"

// TempFilePrefix marks an artifact which is still being written.
// No finalized artifact is ever given a name starting with this prefix.
const TempFilePrefix = "_tmp_"

// FallbackDirName is the directory (below the static prefix of the directory template) used for records
// whose event time cannot be determined
const FallbackDirName = "_unknown_time"

const (
	DefaultUniquePrefix      = "data"
	DefaultMaxOpenTime       = time.Hour
	DefaultIdleTimeout       = 30 * time.Minute
	DefaultLateRecordsLimit  = time.Hour
	DefaultMaxOpenFiles      = 64
	DefaultOperationTimeout  = 30 * time.Second
	DefaultRenameRetries     = 3
	DefaultRetryBackoff      = 100 * time.Millisecond
	DefaultSequenceSyncEvery = 100
	DefaultBatchSize         = 1000
	DefaultTimeZone          = "UTC"
	TimeDriverNow            = "now"
	TimeDriverFieldPrefix    = "field:"
)
