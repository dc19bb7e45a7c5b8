package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"
)

// StartCPUProfile writes a CPU profile to dir and returns a function to stop it
func StartCPUProfile(dir, label string) (func(), error) {
	filename := filepath.Join(dir, fmt.Sprintf("cpu-%s-%s.prof", label, time.Now().Format("20060102-150405")))
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	slog.Info("started CPU profile", "path", filename)

	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
		slog.Info("stopped CPU profile", "path", filename)
	}, nil
}
