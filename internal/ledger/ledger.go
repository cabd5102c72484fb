// Package ledger tracks which caught-fish events have completed the NFT
// pipeline, so an event delivered twice (watcher overlap, process restart)
// is only ever processed once.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fishit-backend/internal/logging"
	"github.com/fishit-backend/internal/types"
)

// ArchiveSink receives every newly marked record. Used for the optional
// relational archive; failures are logged and never block the pipeline.
type ArchiveSink interface {
	Insert(ctx context.Context, rec types.ProcessedEvent) error
}

// Options tune the ledger's bounds and flush cadence.
type Options struct {
	FlushEvery int           // snapshot after this many appends
	MaxRecords int           // keep at most this many records
	Retention  time.Duration // Sweep removes records older than this
	Archive    ArchiveSink   // optional
}

// DefaultOptions matches the deployed configuration: flush every 10 appends,
// keep the last 1000 records for 7 days.
func DefaultOptions() Options {
	return Options{
		FlushEvery: 10,
		MaxRecords: 1000,
		Retention:  7 * 24 * time.Hour,
	}
}

// Ledger is the durable idempotency record. The key set is always
// reconstructable from the ordered record list.
type Ledger struct {
	mu      sync.Mutex
	keys    map[string]struct{}
	history []types.ProcessedEvent

	store   SnapshotStore
	archive ArchiveSink
	opts    Options
	logger  *logging.Logger
}

// Stats summarizes the ledger contents.
type Stats struct {
	TotalProcessed int   `json:"totalProcessed"`
	UniqueUsers    int   `json:"uniqueUsers"`
	OldestEvent    int64 `json:"oldestEvent,omitempty"` // processedAt ms
	NewestEvent    int64 `json:"newestEvent,omitempty"`
}

// New builds a ledger on top of a snapshot store and loads the latest
// snapshot. A load failure starts an empty ledger rather than failing the
// process; losing history is preferable to refusing to boot.
func New(store SnapshotStore, opts Options, logger *logging.Logger) *Ledger {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 10
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = 1000
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}

	l := &Ledger{
		keys:    make(map[string]struct{}),
		store:   store,
		archive: opts.Archive,
		opts:    opts,
		logger:  logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := store.Load(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to load ledger snapshot, starting empty")
		return l
	}

	l.history = records
	l.rebuildKeys()
	if len(records) > 0 {
		logger.WithField("records", len(records)).Info("Loaded processed events from snapshot")
	}

	return l
}

// Key derives the de-duplication key for an event. The transaction hash wins
// when present; otherwise the (user, timestamp) pair identifies the event.
func Key(user string, timestamp uint64, txHash string) string {
	user = strings.ToLower(user)
	if txHash != "" {
		return txHash + "-" + user
	}
	return fmt.Sprintf("%s-%d", user, timestamp)
}

// IsProcessed reports whether the event already completed a pipeline run.
func (l *Ledger) IsProcessed(user string, timestamp uint64, txHash string) bool {
	key := Key(user, timestamp, txHash)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[key]
	return ok
}

// MarkProcessed appends a record. Marking an already present key is a no-op.
// Every FlushEvery appends the snapshot is rewritten asynchronously.
func (l *Ledger) MarkProcessed(rec types.ProcessedEvent) {
	rec.User = strings.ToLower(rec.User)
	if rec.ProcessedAt == 0 {
		rec.ProcessedAt = time.Now().UnixMilli()
	}
	key := Key(rec.User, rec.Timestamp, rec.TransactionHash)

	l.mu.Lock()
	if _, ok := l.keys[key]; ok {
		l.mu.Unlock()
		return
	}

	l.keys[key] = struct{}{}
	l.history = append(l.history, rec)

	if len(l.history) > l.opts.MaxRecords {
		l.history = append([]types.ProcessedEvent(nil), l.history[len(l.history)-l.opts.MaxRecords:]...)
		l.rebuildKeys()
	}

	var snapshot []types.ProcessedEvent
	if len(l.history)%l.opts.FlushEvery == 0 {
		snapshot = append([]types.ProcessedEvent(nil), l.history...)
	}
	l.mu.Unlock()

	if snapshot != nil {
		go l.persist(snapshot)
	}

	if l.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := l.archive.Insert(ctx, rec); err != nil {
				l.logger.WithError(err).Warn("Failed to archive processed event")
			}
		}()
	}
}

// Flush synchronously rewrites the snapshot. Called on shutdown so the
// un-flushed tail is as small as possible.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	snapshot := append([]types.ProcessedEvent(nil), l.history...)
	l.mu.Unlock()

	return l.store.Save(ctx, snapshot)
}

// Sweep removes records older than the retention window and persists the
// reduced list if anything changed. Returns how many records were removed.
func (l *Ledger) Sweep() int {
	cutoff := time.Now().Add(-l.opts.Retention).UnixMilli()

	l.mu.Lock()
	kept := l.history[:0:0]
	for _, rec := range l.history {
		if rec.ProcessedAt > cutoff {
			kept = append(kept, rec)
		}
	}

	removed := len(l.history) - len(kept)
	if removed == 0 {
		l.mu.Unlock()
		return 0
	}

	l.history = kept
	l.rebuildKeys()
	snapshot := append([]types.ProcessedEvent(nil), l.history...)
	l.mu.Unlock()

	l.persist(snapshot)
	l.logger.WithField("removed", removed).Info("Swept expired ledger records")

	return removed
}

// Stats returns summary statistics over the retained records.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	users := make(map[string]struct{}, len(l.history))
	for _, rec := range l.history {
		users[rec.User] = struct{}{}
	}

	stats := Stats{
		TotalProcessed: len(l.history),
		UniqueUsers:    len(users),
	}
	if len(l.history) > 0 {
		stats.OldestEvent = l.history[0].ProcessedAt
		stats.NewestEvent = l.history[len(l.history)-1].ProcessedAt
	}

	return stats
}

// rebuildKeys reconstructs the lookup set from the record list.
// Caller must hold l.mu.
func (l *Ledger) rebuildKeys() {
	l.keys = make(map[string]struct{}, len(l.history))
	for _, rec := range l.history {
		l.keys[Key(rec.User, rec.Timestamp, rec.TransactionHash)] = struct{}{}
	}
}

// persist writes a snapshot, logging rather than propagating failures: the
// in-memory state stays authoritative for this process lifetime.
func (l *Ledger) persist(snapshot []types.ProcessedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, snapshot); err != nil {
		l.logger.WithError(err).Warn("Failed to persist ledger snapshot")
	}
}
