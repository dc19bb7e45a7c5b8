package router

import (
	"fmt"

	"github.com/turbot/tailwriter/internal/errorsink"
	"github.com/turbot/tailwriter/internal/record"
)

// Diversion is a record which was sent to the error sink rather than a partition
type Diversion struct {
	// Index is the position of the record in the batch
	Index     int
	Record    *record.Record
	Reason    errorsink.Reason
	Partition string
	Err       error
}

// RouteReport summarises the routing of a batch.
// Written + Late + Errored always equals the number of records processed.
type RouteReport struct {
	Written  int
	Late     int
	Errored  int
	Diverted []Diversion
}

// Total returns the number of records the report accounts for
func (r *RouteReport) Total() int {
	return r.Written + r.Late + r.Errored
}

func (r *RouteReport) String() string {
	return fmt.Sprintf("Written: %d. Late: %d. Errored: %d.", r.Written, r.Late, r.Errored)
}
