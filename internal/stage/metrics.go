package stage

import (
	"github.com/turbot/tailwriter/internal/metrics"
	"github.com/turbot/tailwriter/internal/writer"
)

// metricsObserver feeds rotation events to a metrics collector
func metricsObserver(m metrics.Collector) writer.Observer {
	return writer.ObserverFunc(func(event writer.RotationEvent) {
		m.RecordRotation(string(event.Reason), event.Records, event.Bytes, event.Discarded, event.Err != nil)
	})
}
