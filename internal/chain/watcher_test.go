package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/fishit-backend/internal/types"
)

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// fakeEthClient scripts block heights and log batches and records every
// successfully queried range.
type fakeEthClient struct {
	mu        sync.Mutex
	height    uint64
	blockErr  error
	filterErr error
	logs      []ethtypes.Log
	ranges    [][2]uint64
}

func (f *fakeEthClient) BlockNumber(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blockErr != nil {
		return 0, f.blockErr
	}
	return f.height, nil
}

func (f *fakeEthClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	f.ranges = append(f.ranges, [2]uint64{q.FromBlock.Uint64(), q.ToBlock.Uint64()})
	logs := f.logs
	f.logs = nil
	return logs, nil
}

func newTestWatcher(t *testing.T, client *fakeEthClient) *Watcher {
	t.Helper()
	w, err := NewWatcher(client, testContract, 0, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	return w
}

// makeLog builds a FishCaught log the way the node would encode it.
func makeLog(t *testing.T, w *Watcher, user common.Address, amount *big.Int, bait uint8, timestamp uint64, block uint64) ethtypes.Log {
	t.Helper()

	data, err := w.contractABI.Events["FishCaught"].Inputs.NonIndexed().Pack(amount, bait, new(big.Int).SetUint64(timestamp))
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}

	return ethtypes.Log{
		Address:     testContract,
		Topics:      []common.Hash{w.eventID, common.BytesToHash(user.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(fmt.Sprintf("0x%064x", timestamp)),
	}
}

// assertExactCoverage checks the queried ranges cover (from..to) inclusive
// with no gap and no overlap.
func assertExactCoverage(t *testing.T, ranges [][2]uint64, from, to uint64) {
	t.Helper()

	next := from
	for i, r := range ranges {
		if r[0] != next {
			t.Fatalf("range %d starts at %d, want %d (gap or overlap)", i, r[0], next)
		}
		if r[1] < r[0] {
			t.Fatalf("range %d is inverted: %v", i, r)
		}
		next = r[1] + 1
	}
	if next != to+1 {
		t.Fatalf("ranges end at %d, want coverage through %d", next-1, to)
	}
}

func TestWatcher_DecodeEvent(t *testing.T) {
	client := &fakeEthClient{}
	w := newTestWatcher(t, client)

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	amount := new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	log := makeLog(t, w, user, amount, 3, 1000, 42)

	event, err := w.decode(log)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}

	if event.User != user.Hex() {
		t.Errorf("User = %v, want %v", event.User, user.Hex())
	}
	if event.Amount.Cmp(amount) != 0 {
		t.Errorf("Amount = %v, want %v", event.Amount, amount)
	}
	if event.BaitType != types.BaitLegendary {
		t.Errorf("BaitType = %v, want %v", event.BaitType, types.BaitLegendary)
	}
	if event.Timestamp != 1000 {
		t.Errorf("Timestamp = %v, want 1000", event.Timestamp)
	}
	if event.BlockNumber != 42 {
		t.Errorf("BlockNumber = %v, want 42", event.BlockNumber)
	}
}

func TestWatcher_DecodeRejectsShortTopics(t *testing.T) {
	client := &fakeEthClient{}
	w := newTestWatcher(t, client)

	_, err := w.decode(ethtypes.Log{Topics: []common.Hash{w.eventID}})
	if err == nil {
		t.Fatal("decode() should reject a log without the user topic")
	}
}

func TestWatcher_PollDeliversEventsSequentially(t *testing.T) {
	client := &fakeEthClient{height: 10}
	w := newTestWatcher(t, client)
	w.lastBlock = 5

	user := common.HexToAddress("0x2222222222222222222222222222222222222222")
	client.logs = []ethtypes.Log{
		makeLog(t, w, user, big.NewInt(1), 0, 100, 6),
		makeLog(t, w, user, big.NewInt(2), 1, 200, 7),
		makeLog(t, w, user, big.NewInt(3), 2, 300, 8),
	}

	var order []uint64
	w.poll(context.Background(), func(_ context.Context, ev *types.CaughtFishEvent) {
		order = append(order, ev.Timestamp)
	})

	if len(order) != 3 {
		t.Fatalf("delivered %d events, want 3", len(order))
	}
	for i, ts := range []uint64{100, 200, 300} {
		if order[i] != ts {
			t.Errorf("event %d timestamp = %d, want %d", i, order[i], ts)
		}
	}
	if w.lastBlock != 10 {
		t.Errorf("lastBlock = %d, want 10", w.lastBlock)
	}
	assertExactCoverage(t, client.ranges, 6, 10)
}

func TestWatcher_NoNewBlocksNoQuery(t *testing.T) {
	client := &fakeEthClient{height: 10}
	w := newTestWatcher(t, client)
	w.lastBlock = 10

	w.poll(context.Background(), func(context.Context, *types.CaughtFishEvent) {
		t.Fatal("callback should not run with no new blocks")
	})

	if len(client.ranges) != 0 {
		t.Errorf("queried %d ranges, want 0", len(client.ranges))
	}
}

func TestWatcher_RPCErrorDoesNotAdvanceCursor(t *testing.T) {
	client := &fakeEthClient{height: 20}
	w := newTestWatcher(t, client)
	w.lastBlock = 10

	// Filter failure abandons the tick.
	client.filterErr = fmt.Errorf("rpc timeout")
	w.poll(context.Background(), func(context.Context, *types.CaughtFishEvent) {})
	if w.lastBlock != 10 {
		t.Fatalf("lastBlock = %d, want 10 after failed tick", w.lastBlock)
	}

	// Next tick retries the same range.
	client.filterErr = nil
	w.poll(context.Background(), func(context.Context, *types.CaughtFishEvent) {})
	assertExactCoverage(t, client.ranges, 11, 20)
}

func TestWatcher_CallbackPanicStillAdvances(t *testing.T) {
	client := &fakeEthClient{height: 12}
	w := newTestWatcher(t, client)
	w.lastBlock = 9

	user := common.HexToAddress("0x3333333333333333333333333333333333333333")
	client.logs = []ethtypes.Log{
		makeLog(t, w, user, big.NewInt(1), 0, 100, 10),
		makeLog(t, w, user, big.NewInt(2), 1, 200, 11),
	}

	var delivered []uint64
	w.poll(context.Background(), func(_ context.Context, ev *types.CaughtFishEvent) {
		delivered = append(delivered, ev.Timestamp)
		if ev.Timestamp == 100 {
			panic("boom")
		}
	})

	// Both events were attempted and the cursor advanced past the tick.
	if len(delivered) != 2 {
		t.Errorf("delivered %d events, want 2", len(delivered))
	}
	if w.lastBlock != 12 {
		t.Errorf("lastBlock = %d, want 12 after panicking callback", w.lastBlock)
	}

	// Later ticks continue from the advanced cursor.
	client.height = 15
	w.poll(context.Background(), func(context.Context, *types.CaughtFishEvent) {})
	assertExactCoverage(t, client.ranges, 10, 15)
}

// Property: across any sequence of height advances (with occasional RPC
// failures), queried ranges exactly cover the observed span.
func TestWatcherRangeCoverageProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("queried ranges cover the span with no gap or overlap", prop.ForAll(
		func(deltas []uint64, failEvery int) bool {
			client := &fakeEthClient{height: 100}
			w, err := NewWatcher(client, testContract, 0, nil)
			if err != nil {
				return false
			}
			w.lastBlock = 100

			height := uint64(100)
			for i, d := range deltas {
				height += d
				client.height = height

				if failEvery > 0 && i%failEvery == 0 {
					client.filterErr = fmt.Errorf("transient rpc error")
				} else {
					client.filterErr = nil
				}

				w.poll(context.Background(), func(context.Context, *types.CaughtFishEvent) {})
			}

			// Final clean tick drains whatever a failed tick left behind.
			client.filterErr = nil
			w.poll(context.Background(), func(context.Context, *types.CaughtFishEvent) {})

			next := uint64(101)
			for _, r := range client.ranges {
				if r[0] != next || r[1] < r[0] {
					return false
				}
				next = r[1] + 1
			}
			return next == height+1
		},
		gen.SliceOfN(12, gen.UInt64Range(1, 9)),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
