package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fishit-backend/internal/types"
)

func newTestLedger(t *testing.T, opts Options) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processed_events.json")
	return New(NewFileStore(path), opts, nil), path
}

func record(user string, ts uint64) types.ProcessedEvent {
	return types.ProcessedEvent{
		User:      user,
		Timestamp: ts,
		BaitType:  1,
		Amount:    "5",
	}
}

func TestLedger_RoundTrip(t *testing.T) {
	l, _ := newTestLedger(t, DefaultOptions())

	if l.IsProcessed("0xAbc", 1000, "") {
		t.Fatal("fresh ledger should not report processed")
	}

	l.MarkProcessed(record("0xAbc", 1000))

	if !l.IsProcessed("0xabc", 1000, "") {
		t.Error("IsProcessed() should be true after MarkProcessed")
	}
	if !l.IsProcessed("0xABC", 1000, "") {
		t.Error("IsProcessed() should be case-insensitive on the user address")
	}
	if l.IsProcessed("0xabc", 1001, "") {
		t.Error("different timestamp should not be processed")
	}
}

func TestLedger_TxHashKeying(t *testing.T) {
	l, _ := newTestLedger(t, DefaultOptions())

	rec := record("0xAbc", 1000)
	rec.TransactionHash = "0xdeadbeef"
	l.MarkProcessed(rec)

	if !l.IsProcessed("0xabc", 1000, "0xdeadbeef") {
		t.Error("IsProcessed() with the same tx hash should be true")
	}
	// The hash key wins when present, so a hash-less lookup misses.
	if l.IsProcessed("0xabc", 1000, "") {
		t.Error("IsProcessed() without tx hash should not match a hash-keyed record")
	}
}

func TestLedger_MarkIsIdempotent(t *testing.T) {
	l, _ := newTestLedger(t, DefaultOptions())

	l.MarkProcessed(record("0xabc", 1000))
	l.MarkProcessed(record("0xabc", 1000))
	l.MarkProcessed(record("0xabc", 1000))

	if got := l.Stats().TotalProcessed; got != 1 {
		t.Errorf("TotalProcessed = %d, want 1", got)
	}
}

func TestLedger_CapacityEviction(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRecords = 50
	l, _ := newTestLedger(t, opts)

	for i := 0; i < 60; i++ {
		l.MarkProcessed(record("0xabc", uint64(i)))
	}

	if got := l.Stats().TotalProcessed; got != 50 {
		t.Fatalf("TotalProcessed = %d, want 50", got)
	}

	// Oldest ten evicted, most recent fifty retained.
	for i := 0; i < 10; i++ {
		if l.IsProcessed("0xabc", uint64(i), "") {
			t.Errorf("record %d should have been evicted", i)
		}
	}
	for i := 10; i < 60; i++ {
		if !l.IsProcessed("0xabc", uint64(i), "") {
			t.Errorf("record %d should have been retained", i)
		}
	}
}

func TestLedger_AgeSweep(t *testing.T) {
	opts := DefaultOptions()
	opts.Retention = 24 * time.Hour
	l, _ := newTestLedger(t, opts)

	old := record("0xaaa", 1)
	old.ProcessedAt = time.Now().Add(-48 * time.Hour).UnixMilli()
	l.MarkProcessed(old)

	fresh := record("0xbbb", 2)
	l.MarkProcessed(fresh)

	if removed := l.Sweep(); removed != 1 {
		t.Fatalf("Sweep() removed = %d, want 1", removed)
	}

	if l.IsProcessed("0xaaa", 1, "") {
		t.Error("expired record should be gone after sweep")
	}
	if !l.IsProcessed("0xbbb", 2, "") {
		t.Error("record within the window should survive the sweep")
	}

	if removed := l.Sweep(); removed != 0 {
		t.Errorf("second Sweep() removed = %d, want 0", removed)
	}
}

func TestLedger_RestartFromSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_events.json")
	store := NewFileStore(path)

	l := New(store, DefaultOptions(), nil)
	for i := 0; i < 5; i++ {
		l.MarkProcessed(record("0xabc", uint64(i)))
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// Simulate a restart on the same snapshot.
	restarted := New(NewFileStore(path), DefaultOptions(), nil)
	for i := 0; i < 5; i++ {
		if !restarted.IsProcessed("0xabc", uint64(i), "") {
			t.Errorf("record %d not restored after restart", i)
		}
	}
	if got := restarted.Stats().TotalProcessed; got != 5 {
		t.Errorf("TotalProcessed after restart = %d, want 5", got)
	}
}

func TestLedger_CorruptSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_events.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt snapshot: %v", err)
	}

	l := New(NewFileStore(path), DefaultOptions(), nil)
	if got := l.Stats().TotalProcessed; got != 0 {
		t.Errorf("TotalProcessed = %d, want 0 after corrupt snapshot", got)
	}

	// Ledger must remain usable.
	l.MarkProcessed(record("0xabc", 1))
	if !l.IsProcessed("0xabc", 1, "") {
		t.Error("ledger should accept new records after a corrupt load")
	}
}

func TestLedger_Stats(t *testing.T) {
	l, _ := newTestLedger(t, DefaultOptions())

	for i := 0; i < 3; i++ {
		l.MarkProcessed(record("0xaaa", uint64(i)))
	}
	l.MarkProcessed(record("0xbbb", 100))

	stats := l.Stats()
	if stats.TotalProcessed != 4 {
		t.Errorf("TotalProcessed = %d, want 4", stats.TotalProcessed)
	}
	if stats.UniqueUsers != 2 {
		t.Errorf("UniqueUsers = %d, want 2", stats.UniqueUsers)
	}
	if stats.NewestEvent < stats.OldestEvent {
		t.Errorf("NewestEvent %d should be >= OldestEvent %d", stats.NewestEvent, stats.OldestEvent)
	}
}

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
	records, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if records != nil {
		t.Errorf("Load() = %v, want nil for missing file", records)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "events", "snapshot.json"))

	var records []types.ProcessedEvent
	for i := 0; i < 12; i++ {
		records = append(records, record(fmt.Sprintf("0x%d", i), uint64(i)))
	}

	if err := store.Save(context.Background(), records); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != len(records) {
		t.Fatalf("Load() returned %d records, want %d", len(loaded), len(records))
	}
	if loaded[3].User != records[3].User || loaded[3].Timestamp != records[3].Timestamp {
		t.Errorf("Load() record mismatch: got %+v, want %+v", loaded[3], records[3])
	}
}
