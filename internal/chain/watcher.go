package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/fishit-backend/internal/logging"
	"github.com/fishit-backend/internal/types"
)

// Callback is invoked once per decoded event, sequentially within a tick.
type Callback func(ctx context.Context, event *types.CaughtFishEvent)

// Watcher polls for FishCaught events over exact block ranges. Each tick
// queries (lastSeen+1 .. current] and only advances the cursor after every
// callback for the tick has returned, so no range is skipped and none is
// queried twice.
type Watcher struct {
	client      EthClient
	contract    common.Address
	contractABI abi.ABI
	eventID     common.Hash
	interval    time.Duration
	logger      *logging.Logger

	mu        sync.Mutex
	lastBlock uint64
	running   bool
	doneCh    chan struct{}
}

// NewWatcher creates a watcher for the staking contract.
func NewWatcher(client EthClient, contract common.Address, interval time.Duration, logger *logging.Logger) (*Watcher, error) {
	if client == nil {
		return nil, fmt.Errorf("eth client cannot be nil")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	contractABI, err := abi.JSON(strings.NewReader(stakingABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	return &Watcher{
		client:      client,
		contract:    contract,
		contractABI: contractABI,
		eventID:     contractABI.Events["FishCaught"].ID,
		interval:    interval,
		logger:      logger,
		doneCh:      make(chan struct{}),
	}, nil
}

// Start records the current height as the cursor and begins the poll loop.
// Events mined before startup are not replayed.
func (w *Watcher) Start(ctx context.Context, callback Callback) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	current, err := w.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get initial block number: %w", err)
	}
	w.lastBlock = current

	w.logger.WithFields(map[string]interface{}{
		"block":    current,
		"interval": w.interval.String(),
	}).Info("Watching for FishCaught events")

	go w.run(ctx, callback)

	return nil
}

// Done is closed when the poll loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) run(ctx context.Context, callback Callback) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Event watcher stopped")
			return
		case <-ticker.C:
			w.poll(ctx, callback)
		}
	}
}

// poll runs one tick. A transient RPC failure abandons the tick without
// advancing the cursor, so the same range is retried next tick.
func (w *Watcher) poll(ctx context.Context, callback Callback) {
	current, err := w.client.BlockNumber(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("Polling error: block number")
		return
	}

	if current <= w.lastBlock {
		return
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(w.lastBlock + 1),
		ToBlock:   new(big.Int).SetUint64(current),
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{{w.eventID}},
	}

	logs, err := w.client.FilterLogs(ctx, query)
	if err != nil {
		w.logger.WithError(err).WithFields(map[string]interface{}{
			"from": w.lastBlock + 1,
			"to":   current,
		}).Warn("Polling error: filter logs")
		return
	}

	for _, log := range logs {
		event, err := w.decode(log)
		if err != nil {
			w.logger.WithError(err).WithField("tx", log.TxHash.Hex()).Warn("Skipping undecodable event log")
			continue
		}

		w.logger.WithFields(map[string]interface{}{
			"user":  event.User,
			"bait":  event.BaitType.Name(),
			"block": event.BlockNumber,
		}).Info("Fish caught")

		w.invoke(ctx, callback, event)
	}

	// Only after every callback has settled does the cursor advance.
	w.lastBlock = current
}

// decode turns a raw log into a CaughtFishEvent.
func (w *Watcher) decode(log ethtypes.Log) (*types.CaughtFishEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("log has %d topics, want 2", len(log.Topics))
	}

	unpacked, err := w.contractABI.Unpack("FishCaught", log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack event data: %w", err)
	}
	if len(unpacked) != 3 {
		return nil, fmt.Errorf("unpacked %d values, want 3", len(unpacked))
	}

	amount, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("amount has unexpected type %T", unpacked[0])
	}
	baitType, ok := unpacked[1].(uint8)
	if !ok {
		return nil, fmt.Errorf("baitType has unexpected type %T", unpacked[1])
	}
	timestamp, ok := unpacked[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("timestamp has unexpected type %T", unpacked[2])
	}

	return &types.CaughtFishEvent{
		User:            common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		Amount:          amount,
		BaitType:        types.BaitType(baitType),
		Timestamp:       timestamp.Uint64(),
		TransactionHash: log.TxHash.Hex(),
		BlockNumber:     log.BlockNumber,
	}, nil
}

// invoke guards the callback so a panic cannot stall event detection; the
// cursor still advances and the loop continues.
func (w *Watcher) invoke(ctx context.Context, callback Callback, event *types.CaughtFishEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.WithFields(map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
				"user":  event.User,
			}).Error("Event callback panicked")
		}
	}()

	callback(ctx, event)
}
