// Package heartbeat lets "orbit status" detect a running "orbit serve"
// process through a periodically rewritten JSON file.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultInterval is how often a Writer refreshes the file.
const DefaultInterval = 30 * time.Second

// Status represents the liveness state of the server.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Heartbeat is the data written to the heartbeat file.
type Heartbeat struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Clients   int       `json:"clients"`
}

// Probe reports the live gauges recorded with each beat.
type Probe func() (clients int)

// Option configures a Writer.
type Option func(*Writer)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithProbe records the probe's gauges in every beat.
func WithProbe(p Probe) Option {
	return func(w *Writer) { w.probe = p }
}

// Writer periodically writes a heartbeat file to disk.
type Writer struct {
	path     string
	addr     string
	interval time.Duration
	probe    Probe
	started  time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter creates a heartbeat writer for a server listening on addr.
func NewWriter(path, addr string, opts ...Option) *Writer {
	w := &Writer{
		path:     path,
		addr:     addr,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start writes a first beat synchronously, then keeps beating in the
// background. The directory of the heartbeat file is created if needed.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create heartbeat dir: %w", err)
	}

	w.started = time.Now()
	if err := w.write(); err != nil {
		return err
	}

	w.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = w.write()
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop stops writing and removes the heartbeat file.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return
	}

	w.cancel()
	<-w.done
	w.cancel = nil

	_ = os.Remove(w.path)
}

func (w *Writer) write() error {
	hb := Heartbeat{
		PID:       os.Getpid(),
		Addr:      w.addr,
		StartedAt: w.started,
		Timestamp: time.Now(),
		Uptime:    time.Since(w.started).Truncate(time.Second).String(),
	}
	if w.probe != nil {
		hb.Clients = w.probe()
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	// tmp + rename keeps readers from seeing a partial file
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("rename heartbeat: %w", err)
	}
	return nil
}

// Check reads a heartbeat file and returns the liveness status.
// A beat older than maxAge is stale; a missing file means dead.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusDead, nil, nil
		}
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}

	if time.Since(hb.Timestamp) > maxAge {
		return StatusStale, &hb, nil
	}
	return StatusAlive, &hb, nil
}
