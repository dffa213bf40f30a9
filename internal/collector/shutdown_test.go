package collector

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"
)

// TestSignalContext tests that the signal context cancels on SIGINT
func TestSignalContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Signal tests not supported on Windows")
	}

	ctx := SignalContext(context.Background())

	// Context should not be cancelled initially
	select {
	case <-ctx.Done():
		t.Error("Context should not be cancelled initially")
	default:
		// Good
	}

	// Send SIGINT to ourselves
	p, _ := os.FindProcess(os.Getpid())
	p.Signal(os.Interrupt)

	// Wait for context to be cancelled
	select {
	case <-ctx.Done():
		// Good
	case <-time.After(1 * time.Second):
		t.Error("Context should be cancelled after signal")
	}
}

// TestStopCancelsRun verifies Stop ends a run the way a signal would
func TestStopCancelsRun(t *testing.T) {
	src := newTestSource("gen9ou-1")
	store := &fakeStore{}

	runner := NewRunner(src, store, Config{Format: "gen9ou", Pages: 1, WorkerCount: 1})

	done := make(chan struct{})
	go func() {
		runner.Run(context.Background())
		close(done)
	}()

	// Stop is safe to call while the run is in flight or already finished
	time.Sleep(50 * time.Millisecond)
	runner.Stop()

	select {
	case <-done:
		// Good
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
