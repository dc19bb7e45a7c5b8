package partition

import "time"

type Classification int

const (
	Current Classification = iota
	Late
)

func (c Classification) String() string {
	switch c {
	case Current:
		return "CURRENT"
	case Late:
		return "LATE"
	default:
		return "UNKNOWN"
	}
}

// Classify decides whether a record routed to key is late.
// The partition is late if its bucket ends before stageTime - cutoff. Unbounded buckets are never late,
// and a cutoff <= 0 disables late record detection.
func Classify(key Key, stageTime time.Time, cutoff time.Duration) Classification {
	if key.Bucket.Unbounded() || cutoff <= 0 {
		return Current
	}
	if key.Bucket.End.Before(stageTime.Add(-cutoff)) {
		return Late
	}
	return Current
}

// LateCutoff returns the instant before which a bucket must end to be considered late
func LateCutoff(stageTime time.Time, cutoff time.Duration) time.Time {
	return stageTime.Add(-cutoff)
}
