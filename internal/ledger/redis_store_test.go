package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/fishit-backend/internal/config"
	"github.com/fishit-backend/internal/types"
)

func newMiniredisStore(t *testing.T) *RedisStore {
	t.Helper()

	srv := miniredis.RunT(t)
	cfg := &config.RedisConfig{
		Host:           srv.Host(),
		Port:           srv.Port(),
		MaxConnections: 10,
	}

	store, err := NewRedisStore(cfg, "test:processed_events")
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestRedisStore_LoadEmpty(t *testing.T) {
	store := newMiniredisStore(t)

	records, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if records != nil {
		t.Errorf("Load() = %v, want nil for missing key", records)
	}
}

func TestRedisStore_SaveLoad(t *testing.T) {
	store := newMiniredisStore(t)

	records := []types.ProcessedEvent{
		{User: "0xabc", Timestamp: 1000, BaitType: 3, Amount: "5", ProcessedAt: 1234},
		{User: "0xdef", Timestamp: 2000, BaitType: 0, Amount: "1.5", ProcessedAt: 5678},
	}

	if err := store.Save(context.Background(), records); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load() returned %d records, want 2", len(loaded))
	}
	if loaded[0].User != "0xabc" || loaded[1].Amount != "1.5" {
		t.Errorf("Load() mismatch: %+v", loaded)
	}
}

func TestLedger_WithRedisStore(t *testing.T) {
	store := newMiniredisStore(t)

	l := New(store, DefaultOptions(), nil)
	l.MarkProcessed(types.ProcessedEvent{User: "0xAbc", Timestamp: 1000, Amount: "5"})
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	restarted := New(store, DefaultOptions(), nil)
	if !restarted.IsProcessed("0xabc", 1000, "") {
		t.Error("record should survive a restart through the Redis store")
	}
}
