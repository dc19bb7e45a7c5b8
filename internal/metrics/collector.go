package metrics

// Route outcomes
const (
	OutcomeWritten = "written"
	OutcomeLate    = "late"
	OutcomeErrored = "errored"
)

// Collector receives the stage metrics
type Collector interface {
	// RecordRouted counts records by route outcome
	RecordRouted(outcome string, count int)

	// RecordRotation records a handle rotation. failed is set when the rotation could not finalize
	// the artifact, discarded when the handle was empty.
	RecordRotation(reason string, records, bytes int64, discarded, failed bool)

	// SetOpenHandles sets the number of handles currently open
	SetOpenHandles(count int)

	// ObserveBatch records the time taken to route a batch, in seconds
	ObserveBatch(seconds float64)
}
