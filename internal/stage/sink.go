package stage

import (
	"fmt"

	"github.com/turbot/tailwriter/internal/config"
	"github.com/turbot/tailwriter/internal/errorsink"
)

func newErrorSink(c config.ErrorSinkConfig) (errorsink.Sink, error) {
	switch c.Type {
	case config.ErrorSinkFile:
		return errorsink.NewFileSink(c.Path)
	case config.ErrorSinkAMQP:
		return errorsink.DialAMQP(c.URL, c.Queue)
	case config.ErrorSinkMemory, "":
		return errorsink.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown error sink type %q", c.Type)
	}
}
