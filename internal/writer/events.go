package writer

import (
	"sync"
	"time"

	"github.com/turbot/tailwriter/internal/partition"
)

type RotationReason string

const (
	ReasonMaxRecords  RotationReason = "max_records"
	ReasonMaxFileSize RotationReason = "max_file_size"
	ReasonMaxOpenTime RotationReason = "max_open_time"
	ReasonIdle        RotationReason = "idle"
	ReasonEvicted     RotationReason = "evicted"
	ReasonWriteError  RotationReason = "write_error"
	ReasonExplicit    RotationReason = "explicit"
	ReasonShutdown    RotationReason = "shutdown"
)

// RotationEvent is raised each time a handle is rotated
type RotationEvent struct {
	Key    partition.Key
	Reason RotationReason
	// Path is the final path of the artifact. Empty if the handle had no records and was discarded.
	Path      string
	Records   int64
	Bytes     int64
	OpenedAt  time.Time
	RotatedAt time.Time
	Discarded bool
	Err       error
}

type Observer interface {
	OnRotation(event RotationEvent)
}

// ObserverFunc adapts a function to an Observer
type ObserverFunc func(event RotationEvent)

func (f ObserverFunc) OnRotation(event RotationEvent) {
	f(event)
}

type observers struct {
	list  []Observer
	mutex sync.RWMutex
}

func (o *observers) AddObserver(observer Observer) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.list = append(o.list, observer)
}

func (o *observers) NotifyObservers(event RotationEvent) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	for _, observer := range o.list {
		observer.OnRotation(event)
	}
}
