// Package control handles cross-process run control via the run
// directory. A detached run watches its signals directory; pause, resume,
// and stop files written by another process are applied to the controller.
package control

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Signal names the recognized signal files.
type Signal string

const (
	SignalPause  Signal = "pause"
	SignalResume Signal = "resume"
	SignalStop   Signal = "stop"
)

// SignalManager handles cross-process run control via signal files in the
// run directory.
type SignalManager struct {
	runDir string

	mu           sync.RWMutex
	pauseSignal  bool
	resumeSignal bool
	stopSignal   bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalManager creates a signal manager rooted at the given run
// directory. The fsnotify watcher is best-effort; without it the stat
// fallback in the Should* accessors still observes signal files.
func NewSignalManager(runDir string) (*SignalManager, error) {
	signalsDir := filepath.Join(runDir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sm := &SignalManager{
		runDir: runDir,
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher - will use polling fallback
		return sm, nil
	}
	sm.watcher = watcher

	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		sm.watcher = nil
		return sm, nil
	}

	go sm.watchSignals()

	return sm, nil
}

// watchSignals monitors the signals directory for signal files.
func (sm *SignalManager) watchSignals() {
	for {
		select {
		case <-sm.done:
			return
		case event, ok := <-sm.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			sm.mu.Lock()
			switch Signal(filepath.Base(event.Name)) {
			case SignalPause:
				sm.pauseSignal = true
			case SignalResume:
				sm.resumeSignal = true
			case SignalStop:
				sm.stopSignal = true
			}
			sm.mu.Unlock()
		case <-sm.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

func (sm *SignalManager) signalPath(sig Signal) string {
	return filepath.Join(sm.runDir, "signals", string(sig))
}

// checkFile stats the signal file directly in case the watcher missed it.
func (sm *SignalManager) checkFile(sig Signal, flag *bool) bool {
	if _, err := os.Stat(sm.signalPath(sig)); err == nil {
		sm.mu.Lock()
		*flag = true
		sm.mu.Unlock()
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return *flag
}

// ShouldStop returns true if a stop signal has been received.
func (sm *SignalManager) ShouldStop() bool {
	return sm.checkFile(SignalStop, &sm.stopSignal)
}

// ShouldPause returns true if a pause signal has been received.
func (sm *SignalManager) ShouldPause() bool {
	return sm.checkFile(SignalPause, &sm.pauseSignal)
}

// ShouldResume returns true if a resume signal has been received.
func (sm *SignalManager) ShouldResume() bool {
	return sm.checkFile(SignalResume, &sm.resumeSignal)
}

// Send creates a signal file.
func (sm *SignalManager) Send(sig Signal) error {
	return os.WriteFile(sm.signalPath(sig), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes one signal file and resets its flag, consuming the signal
// after it has been applied.
func (sm *SignalManager) Clear(sig Signal) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sig {
	case SignalPause:
		sm.pauseSignal = false
	case SignalResume:
		sm.resumeSignal = false
	case SignalStop:
		sm.stopSignal = false
	}
	os.Remove(sm.signalPath(sig))
}

// ClearAll removes all signal files and resets signal state.
func (sm *SignalManager) ClearAll() {
	for _, sig := range []Signal{SignalPause, SignalResume, SignalStop} {
		sm.Clear(sig)
	}
}

// RunDir returns the path to the run directory.
func (sm *SignalManager) RunDir() string {
	return sm.runDir
}

// Close shuts down the signal manager.
func (sm *SignalManager) Close() {
	close(sm.done)
	if sm.watcher != nil {
		sm.watcher.Close()
	}
}
