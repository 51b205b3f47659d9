// Package storage keeps an append-only journal of bus events on disk.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dohr-michael/orbit/internal/events"
)

// EventLogger persists bus events to JSONL files, one file per UTC day.
type EventLogger struct {
	dir         string
	skip        map[events.EventType]bool
	mu          sync.Mutex
	unsubscribe func()
}

// NewEventLogger subscribes to bus and appends the given event types to
// dir. With no types every event is journaled except snapshot summaries.
func NewEventLogger(dir string, bus *events.Bus, types ...events.EventType) (*EventLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	el := &EventLogger{dir: dir}
	if len(types) == 0 {
		// one per transform, too noisy
		el.skip = map[events.EventType]bool{events.EventSnapshotChanged: true}
	}
	el.unsubscribe = bus.Subscribe(el.handleEvent, types...)
	return el, nil
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	if el.skip[e.Type] {
		return
	}
	if err := el.writeEvent(e); err != nil {
		slog.Debug("journal write failed", "event", e.Type, "error", err)
	}
}

func (el *EventLogger) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()

	f, err := os.OpenFile(el.logPath(e.Timestamp), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

func (el *EventLogger) logPath(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return filepath.Join(el.dir, at.UTC().Format("2006-01-02")+".jsonl")
}

// ReadDay returns the journaled events of the UTC day containing at.
func ReadDay(dir string, at time.Time) ([]events.Event, error) {
	el := EventLogger{dir: dir}
	data, err := os.ReadFile(el.logPath(at))
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var out []events.Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e events.Event
		if err := dec.Decode(&e); err != nil {
			return out, fmt.Errorf("decode journal: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
