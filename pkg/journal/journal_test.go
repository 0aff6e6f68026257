package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteCycle(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.nowFn = func() time.Time { return time.Date(2025, 9, 2, 0, 5, 0, 0, time.UTC) }

	path, err := w.WriteCycle(&CycleRecord{
		Attempts: 2,
		Emitted:  3,
		Failed:   []string{"chain 106W09"},
		Success:  false,
	})
	if err != nil {
		t.Fatalf("write cycle: %v", err)
	}
	if filepath.Base(path) != "cycle_20250902_000500_00001.json" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var rec CycleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.CycleNumber != 1 || rec.Emitted != 3 || len(rec.Failed) != 1 {
		t.Fatalf("round trip mismatch: %+v", rec)
	}

	// Sequence numbers advance per writer.
	path2, err := w.WriteCycle(&CycleRecord{Success: true})
	if err != nil {
		t.Fatalf("write cycle 2: %v", err)
	}
	if filepath.Base(path2) != "cycle_20250902_000500_00002.json" {
		t.Fatalf("unexpected second file name %s", filepath.Base(path2))
	}
}

func TestWriteCycle_NilRecord(t *testing.T) {
	w := NewWriter(t.TempDir())
	if _, err := w.WriteCycle(nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}
