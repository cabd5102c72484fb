// Package types defines the core domain types shared across the NFT
// generation backend.
package types

import (
	"fmt"
	"math/big"
	"strings"
)

// BaitType is the bait the player staked with, as encoded on-chain.
type BaitType uint8

const (
	BaitCommon BaitType = iota
	BaitRare
	BaitEpic
	BaitLegendary
)

var baitNames = [...]string{"Common", "Rare", "Epic", "Legendary"}

// Name returns the human-readable bait name.
func (b BaitType) Name() string {
	if int(b) < len(baitNames) {
		return baitNames[b]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(b))
}

// Valid reports whether the value is one of the four known bait types.
func (b BaitType) Valid() bool {
	return int(b) < len(baitNames)
}

// CaughtFishEvent is one decoded FishCaught occurrence. It is created by the
// chain watcher and consumed exactly once by the pipeline; it is never
// mutated after decoding.
type CaughtFishEvent struct {
	User            string   `json:"user"`
	Amount          *big.Int `json:"amount"`
	BaitType        BaitType `json:"baitType"`
	Timestamp       uint64   `json:"timestamp"`
	TransactionHash string   `json:"transactionHash,omitempty"`
	BlockNumber     uint64   `json:"blockNumber,omitempty"`
}

// FlightKey is the in-process single-flight key for the event.
func (e *CaughtFishEvent) FlightKey() string {
	return fmt.Sprintf("%s-%d", strings.ToLower(e.User), e.Timestamp)
}

// ProcessedEvent is the durable idempotency record kept by the ledger after
// a pipeline run completes.
type ProcessedEvent struct {
	User            string `json:"user"`
	Timestamp       uint64 `json:"timestamp"`
	BaitType        uint8  `json:"baitType"`
	Amount          string `json:"amount"`
	BlockNumber     uint64 `json:"blockNumber"`
	TransactionHash string `json:"transactionHash"`
	ProcessedAt     int64  `json:"processedAt"` // wall clock, milliseconds
}

// Stage identifies a pipeline progress stage as published to clients.
type Stage string

const (
	StageGenerating        Stage = "generating"
	StageUploadingImage    Stage = "uploading_image"
	StageUploadingMetadata Stage = "uploading_metadata"
	StageMinting           Stage = "minting"
	StageComplete          Stage = "complete"
	StageError             Stage = "error"
)

// ProgressUpdate is the notification payload sent over the progress stream.
type ProgressUpdate struct {
	User    string                 `json:"user"`
	Stage   Stage                  `json:"stage"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Attribute is one OpenSea-style metadata trait.
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// FishMetadata is the full NFT metadata object pinned to IPFS.
type FishMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Species     string      `json:"species"`
	Image       string      `json:"image,omitempty"`
	ExternalURL string      `json:"external_url,omitempty"`
	Attributes  []Attribute `json:"attributes"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatEther renders a base-unit (wei) amount as a decimal token string
// with trailing zeros trimmed ("5000000000000000000" -> "5").
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(wei, weiPerToken, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%018s", rem.String()), "0")
	return quo.String() + "." + frac
}
