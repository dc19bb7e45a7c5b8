package stage

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/turbot/tailwriter/internal/router"
	"github.com/turbot/tailwriter/internal/writer"
)

// Status is the running total of a stage
type Status struct {
	Batches  int64
	Written  int64
	Late     int64
	Errored  int64
	Diverted map[string]int64 // diverted records by reason

	Artifacts      int64 // committed artifacts
	ArtifactBytes  int64
	Discarded      int64 // handles closed without records
	Rotations      map[writer.RotationReason]int64
	FailedCommits  int64
	LatestArtifact string

	Duration time.Duration
}

func newStatus() *Status {
	return &Status{
		Diverted:  make(map[string]int64),
		Rotations: make(map[writer.RotationReason]int64),
	}
}

func (s *Status) clone() Status {
	res := *s
	res.Diverted = maps.Clone(s.Diverted)
	res.Rotations = maps.Clone(s.Rotations)
	return res
}

func (s *Status) String() string {
	return fmt.Sprintf("Records written: %s. Late: %s. Errored: %s. Files: %s (%s). Discarded writers: %s.",
		humanize.Comma(s.Written),
		humanize.Comma(s.Late),
		humanize.Comma(s.Errored),
		humanize.Comma(s.Artifacts),
		humanize.Bytes(uint64(s.ArtifactBytes)),
		humanize.Comma(s.Discarded))
}

// statusTracker accumulates route reports and rotation events
type statusTracker struct {
	mutex  sync.Mutex
	status *Status
	start  time.Time
}

func newStatusTracker() *statusTracker {
	return &statusTracker{status: newStatus(), start: time.Now()}
}

func (t *statusTracker) addReport(report *router.RouteReport) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.status.Batches++
	t.status.Written += int64(report.Written)
	t.status.Late += int64(report.Late)
	t.status.Errored += int64(report.Errored)
	for _, d := range report.Diverted {
		t.status.Diverted[string(d.Reason)]++
	}
}

func (t *statusTracker) OnRotation(event writer.RotationEvent) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.status.Rotations[event.Reason]++
	switch {
	case event.Err != nil:
		t.status.FailedCommits++
	case event.Discarded:
		t.status.Discarded++
	default:
		t.status.Artifacts++
		t.status.ArtifactBytes += event.Bytes
		t.status.LatestArtifact = event.Path
	}
}

func (t *statusTracker) get() Status {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	res := t.status.clone()
	res.Duration = time.Since(t.start)
	return res
}
