package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fishit-backend/internal/ledger"
	"github.com/fishit-backend/internal/logging"
	"github.com/fishit-backend/internal/progress"
	"github.com/fishit-backend/internal/rarity"
	"github.com/fishit-backend/internal/types"
)

// MetadataGenerator produces fish metadata and artwork.
type MetadataGenerator interface {
	GenerateMetadata(ctx context.Context, rarityTier, baitName, stakeAmount string) (*types.FishMetadata, error)
	GenerateImage(ctx context.Context, name, species, rarityTier string) ([]byte, error)
}

// Pinner stores content on IPFS and resolves gateway URLs.
type Pinner interface {
	PinJSON(ctx context.Context, name string, content interface{}) (string, error)
	PinFile(ctx context.Context, name string, data []byte) (string, error)
	GatewayURL(cid string) string
}

// Registrar records the finished token on chain.
type Registrar interface {
	SubmitRegistration(ctx context.Context, user string, metadataCID string) (string, error)
}

// Pipeline drives a caught-fish event through generation, pinning and
// on-chain registration, reporting each stage to subscribers.
type Pipeline struct {
	generator MetadataGenerator
	pinner    Pinner
	registrar Registrar
	ledger    *ledger.Ledger
	hub       *progress.Hub
	rarity    *rarity.Calculator
	logger    *logging.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a pipeline. All collaborators are required except the
// registrar, which may be nil when chain submission is disabled.
func New(generator MetadataGenerator, pinner Pinner, registrar Registrar, led *ledger.Ledger, hub *progress.Hub, calc *rarity.Calculator, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Pipeline{
		generator: generator,
		pinner:    pinner,
		registrar: registrar,
		ledger:    led,
		hub:       hub,
		rarity:    calc,
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}
}

// ProcessEvent runs the full pipeline for one event. It never returns an
// error: failures are reported on the progress channel and the event is
// left unmarked so a redelivery can retry it.
func (p *Pipeline) ProcessEvent(ctx context.Context, event *types.CaughtFishEvent) {
	if event == nil {
		return
	}

	user := strings.ToLower(event.User)
	runID := uuid.New().String()
	log := p.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"user":   user,
		"tx":     event.TransactionHash,
	})

	if p.ledger.IsProcessed(event.User, event.Timestamp, event.TransactionHash) {
		log.Info("Event already processed, skipping")
		return
	}

	key := event.FlightKey()
	p.mu.Lock()
	if _, busy := p.inflight[key]; busy {
		p.mu.Unlock()
		log.Info("Event already in flight, skipping duplicate delivery")
		return
	}
	p.inflight[key] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inflight, key)
		p.mu.Unlock()
	}()

	tier := p.rarity.Roll(event.BaitType, event.Amount)
	baitName := event.BaitType.Name()
	stakeAmount := types.FormatEther(event.Amount)

	log = log.WithFields(map[string]interface{}{
		"rarity": tier,
		"bait":   baitName,
		"stake":  stakeAmount,
	})
	log.Info("Starting NFT generation")

	p.publish(user, types.StageGenerating, "Generating your fish...", map[string]interface{}{
		"rarity":      tier,
		"baitName":    baitName,
		"stakeAmount": stakeAmount,
	})

	metadata, err := p.generator.GenerateMetadata(ctx, tier, baitName, stakeAmount)
	if err != nil {
		p.fail(log, user, "generate metadata", err)
		return
	}

	p.publish(user, types.StageUploadingImage, "Creating artwork...", map[string]interface{}{
		"name":    metadata.Name,
		"species": metadata.Species,
	})

	image, err := p.generator.GenerateImage(ctx, metadata.Name, metadata.Species, tier)
	if err != nil {
		p.fail(log, user, "generate image", err)
		return
	}

	imageCID, err := p.pinner.PinFile(ctx, metadata.Name+".png", image)
	if err != nil {
		p.fail(log, user, "pin image", err)
		return
	}
	imageURL := p.pinner.GatewayURL(imageCID)

	p.publish(user, types.StageUploadingMetadata, "Storing metadata...", map[string]interface{}{
		"imageUrl": imageURL,
	})

	metadata.Image = "ipfs://" + imageCID
	metadata.ExternalURL = imageURL

	metadataCID, err := p.pinner.PinJSON(ctx, metadata.Name, metadata)
	if err != nil {
		p.fail(log, user, "pin metadata", err)
		return
	}

	p.publish(user, types.StageMinting, "Registering your NFT on chain...", map[string]interface{}{
		"metadataCid": metadataCID,
	})

	if p.registrar != nil {
		txHash, err := p.registrar.SubmitRegistration(ctx, event.User, metadataCID)
		if err != nil {
			p.fail(log, user, "submit registration", err)
			return
		}
		log = log.WithField("mint_tx", txHash)
	}

	p.publish(user, types.StageComplete, "Your fish NFT is ready!", map[string]interface{}{
		"metadata":    metadata,
		"imageUrl":    imageURL,
		"metadataUrl": p.pinner.GatewayURL(metadataCID),
		"ipfsUri":     "ipfs://" + metadataCID,
	})

	p.ledger.MarkProcessed(types.ProcessedEvent{
		User:            event.User,
		Timestamp:       event.Timestamp,
		BaitType:        uint8(event.BaitType),
		Amount:          stakeAmount,
		BlockNumber:     event.BlockNumber,
		TransactionHash: event.TransactionHash,
	})

	stats := p.ledger.Stats()
	log.WithFields(map[string]interface{}{
		"total_processed": stats.TotalProcessed,
		"unique_users":    stats.UniqueUsers,
	}).Info("NFT generation complete")
}

func (p *Pipeline) publish(user string, stage types.Stage, message string, data map[string]interface{}) {
	p.hub.Publish(types.ProgressUpdate{
		User:    user,
		Stage:   stage,
		Message: message,
		Data:    data,
	})
}

func (p *Pipeline) fail(log *logging.Logger, user, step string, err error) {
	wrapped := fmt.Errorf("%s: %w", step, err)
	log.WithError(wrapped).Error("NFT generation failed")
	p.publish(user, types.StageError, wrapped.Error(), map[string]interface{}{
		"error": wrapped.Error(),
	})
}
