package partition

import "time"

// timeUnit is the resolution of a time variable used in a directory template
type timeUnit int

const (
	unitNone timeUnit = iota
	unitYear
	unitMonth
	unitDay
	unitHour
	unitMinute
	unitSecond
)

// the time variables available to templates, and the unit each one resolves to
var timeVariables = map[string]timeUnit{
	"YYYY": unitYear,
	"YY":   unitYear,
	"MM":   unitMonth,
	"DD":   unitDay,
	"hh":   unitHour,
	"mm":   unitMinute,
	"ss":   unitSecond,
}

// the time variables which may be grouped using every(n, var)
var steppableVariables = map[string]int{
	"hh": 24,
	"mm": 60,
	"ss": 60,
}

// granularity is the width of the time bucket a template partitions by: the finest time unit the
// template references, optionally grouped in steps by every()
type granularity struct {
	unit timeUnit
	step int
}

// bucket returns the bucket containing t. t must already be in the template location.
func (g granularity) bucket(t time.Time) Bucket {
	step := g.step
	if step < 1 {
		step = 1
	}
	y, m, d := t.Date()
	loc := t.Location()
	var start, end, parentEnd time.Time
	switch g.unit {
	case unitYear:
		start = time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		return Bucket{Start: start, End: start.AddDate(1, 0, 0)}
	case unitMonth:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Bucket{Start: start, End: start.AddDate(0, 1, 0)}
	case unitDay:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		return Bucket{Start: start, End: start.AddDate(0, 0, 1)}
	case unitHour:
		start = time.Date(y, m, d, t.Hour()/step*step, 0, 0, 0, loc)
		end = start.Add(time.Duration(step) * time.Hour)
		parentEnd = time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	case unitMinute:
		start = time.Date(y, m, d, t.Hour(), t.Minute()/step*step, 0, 0, loc)
		end = start.Add(time.Duration(step) * time.Minute)
		parentEnd = time.Date(y, m, d, t.Hour(), 0, 0, 0, loc).Add(time.Hour)
	case unitSecond:
		start = time.Date(y, m, d, t.Hour(), t.Minute(), t.Second()/step*step, 0, loc)
		end = start.Add(time.Duration(step) * time.Second)
		parentEnd = time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute)
	default:
		return Bucket{}
	}
	// a step which does not divide its parent unit leaves a shorter final bucket
	if end.After(parentEnd) {
		end = parentEnd
	}
	return Bucket{Start: start, End: end}
}
