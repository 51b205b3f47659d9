package heartbeat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriteReadCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "heartbeat.json")

	w := NewWriter(path, "127.0.0.1:7420", WithProbe(func() int { return 3 }))
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	status, hb, err := Check(path, 2*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusAlive {
		t.Errorf("expected alive, got %s", status)
	}
	if hb == nil {
		t.Fatal("expected heartbeat, got nil")
	}
	if hb.PID != os.Getpid() {
		t.Errorf("PID: got %d, want %d", hb.PID, os.Getpid())
	}
	if hb.Addr != "127.0.0.1:7420" {
		t.Errorf("Addr: got %q", hb.Addr)
	}
	if hb.Clients != 3 {
		t.Errorf("Clients: got %d, want 3", hb.Clients)
	}
	if hb.Uptime == "" {
		t.Error("expected non-empty uptime")
	}
}

func TestWriterRefreshesProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	var clients atomic.Int32
	w := NewWriter(path, "", WithInterval(10*time.Millisecond), WithProbe(func() int {
		return int(clients.Load())
	}))
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	clients.Store(5)
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, hb, err := Check(path, time.Minute)
		if err == nil && hb != nil && hb.Clients == 5 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("probe value never written, last %+v err %v", hb, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStaleDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	old := Heartbeat{
		PID:       os.Getpid(),
		StartedAt: time.Now().Add(-2 * time.Hour),
		Timestamp: time.Now().Add(-1 * time.Hour),
		Uptime:    "1h0m0s",
	}
	data, _ := json.Marshal(old)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	status, hb, err := Check(path, 30*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusStale {
		t.Errorf("expected stale, got %s", status)
	}
	if hb == nil {
		t.Fatal("expected heartbeat, got nil")
	}
}

func TestDeadDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	status, hb, err := Check(path, 2*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusDead {
		t.Errorf("expected dead, got %s", status)
	}
	if hb != nil {
		t.Errorf("expected nil heartbeat, got %+v", hb)
	}
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	status, _, err := Check(path, time.Minute)
	if err == nil {
		t.Fatal("expected error for corrupt file")
	}
	if status != StatusDead {
		t.Errorf("expected dead, got %s", status)
	}
}

func TestStopRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	w := NewWriter(path, "")
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.Stop() // idempotent

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected heartbeat file to be removed after Stop")
	}
}
