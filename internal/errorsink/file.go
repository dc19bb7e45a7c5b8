package errorsink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileSink appends diverted records as JSON lines
type FileSink struct {
	mutex  sync.Mutex
	closer io.Closer
	w      *bufio.Writer
}

// NewFileSink appends to the file at path, creating it if needed
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error file %s: %w", path, err)
	}
	return NewWriterSink(f), nil
}

// NewWriterSink writes JSON lines to w, closing it on Close if it is an io.Closer
func NewWriterSink(w io.Writer) *FileSink {
	s := &FileSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Emit writes the entry and flushes, so that a diverted record is persisted before the batch completes
func (s *FileSink) Emit(_ context.Context, entry Entry) error {
	line, err := MarshalEntry(entry)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *FileSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	err := s.w.Flush()
	if s.closer != nil {
		if closeErr := s.closer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
