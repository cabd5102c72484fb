// Package chain connects the backend to the staking contract: it watches
// for FishCaught events and submits the prepared-NFT registration once a
// content identifier exists.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fishit-backend/internal/config"
	"github.com/fishit-backend/internal/logging"
)

// stakingABI covers the one event we watch and the one method we call.
const stakingABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"user","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},
		{"indexed":false,"internalType":"uint8","name":"baitType","type":"uint8"},
		{"indexed":false,"internalType":"uint256","name":"timestamp","type":"uint256"}],
	 "name":"FishCaught","type":"event"},
	{"inputs":[
		{"internalType":"address","name":"user","type":"address"},
		{"internalType":"string","name":"cid","type":"string"}],
	 "name":"prepareNFT","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// EthClient is the subset of the RPC client the watcher needs. Narrow so
// tests can inject fakes.
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
}

// Ensure ethclient.Client implements EthClient interface
var _ EthClient = (*ethclient.Client)(nil)

// Client wraps the RPC connection and the operator wallet.
type Client struct {
	eth            *ethclient.Client
	contractABI    abi.ABI
	contract       common.Address
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	confirmTimeout time.Duration
	logger         *logging.Logger
}

// NewClient dials the RPC endpoint and prepares the signing wallet.
func NewClient(ctx context.Context, cfg *config.ChainConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	contractABI, err := abi.JSON(strings.NewReader(stakingABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}

	return &Client{
		eth:            eth,
		contractABI:    contractABI,
		contract:       common.HexToAddress(cfg.ContractAddress),
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// ContractAddress returns the watched staking contract address.
func (c *Client) ContractAddress() common.Address {
	return c.contract
}

// BlockNumber returns the current chain height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// FilterLogs queries the event log for a block range.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return c.eth.FilterLogs(ctx, q)
}

// SubmitRegistration calls prepareNFT(user, cid) and waits for the
// transaction to be mined. It returns the transaction hash only after
// on-chain confirmation; a reverted transaction is an error.
func (c *Client) SubmitRegistration(ctx context.Context, user, cid string) (string, error) {
	data, err := c.contractABI.Pack("prepareNFT", common.HexToAddress(user), cid)
	if err != nil {
		return "", fmt.Errorf("pack prepareNFT: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &c.contract,
		Data:     data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"tx":   signed.Hash().Hex(),
		"user": user,
	}).Info("Registration transaction sent, waiting for confirmation")

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, signed)
	if err != nil {
		return "", fmt.Errorf("wait for confirmation: %w", err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return "", fmt.Errorf("registration transaction %s reverted", signed.Hash().Hex())
	}

	return signed.Hash().Hex(), nil
}
