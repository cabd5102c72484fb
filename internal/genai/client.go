// Package genai calls the generative AI service that produces fish NFT
// metadata and artwork. Responses are never trusted to be well-shaped: every
// decode failure fails the request loudly.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fishit-backend/internal/config"
	"github.com/fishit-backend/internal/logging"
	"github.com/fishit-backend/internal/types"
)

// Client talks to a Gemini-style generateContent API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	textModel  string
	imageModel string
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewClient builds a generation client from configuration.
func NewClient(cfg *config.GenerationConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 10
	}

	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger:     logger,
	}
}

// Request/response shapes for the generateContent endpoint.

type generatePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *generateInline `json:"inlineData,omitempty"`
}

type generateInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
}

// GenerateMetadata asks the model for fish NFT metadata and decodes the JSON
// object embedded in its reply.
func (c *Client) GenerateMetadata(ctx context.Context, rarity, baitName, stakeAmount string) (*types.FishMetadata, error) {
	prompt := fmt.Sprintf(`Generate a unique fish NFT metadata in JSON format.
Rarity: %s
Bait Used: %s
Stake Amount: %s FSHT

Return ONLY valid JSON with this structure:
{
  "name": "unique fish name",
  "description": "creative description",
  "species": "fish species",
  "attributes": [
    {"trait_type": "Rarity", "value": "%s"},
    {"trait_type": "Species", "value": "species name"},
    {"trait_type": "Weight", "value": weight in kg},
    {"trait_type": "Bait Used", "value": "%s"},
    {"trait_type": "Stake Amount", "value": "%s"}
  ]
}`, rarity, baitName, stakeAmount, rarity, baitName, stakeAmount)

	resp, err := c.generate(ctx, c.textModel, prompt, nil)
	if err != nil {
		return nil, err
	}

	text := firstText(resp)
	if text == "" {
		return nil, fmt.Errorf("model response contains no text")
	}

	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var meta types.FishMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata JSON: %w", err)
	}
	if meta.Name == "" || meta.Species == "" || meta.Description == "" {
		return nil, fmt.Errorf("metadata is missing required fields: %q", raw)
	}

	return &meta, nil
}

// GenerateImage asks the image model for artwork and returns the decoded
// image bytes.
func (c *Client) GenerateImage(ctx context.Context, name, species, rarity string) ([]byte, error) {
	prompt := fmt.Sprintf(
		"Digital artwork of a %s rarity NFT fish named %q, species %s, vibrant underwater scene, detailed scales, collectible card style.",
		rarity, name, species,
	)

	resp, err := c.generate(ctx, c.imageModel, prompt, &generationConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, err
	}

	inline := firstInlineData(resp)
	if inline == nil {
		return nil, fmt.Errorf("model response contains no image data")
	}

	data, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("model returned an empty image")
	}

	return data, nil
}

// generate performs one rate-limited generateContent call.
func (c *Client) generate(ctx context.Context, model, prompt string, genCfg *generationConfig) (*generateResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqBody, err := json.Marshal(generateRequest{
		Contents:         []generateContent{{Parts: []generatePart{{Text: prompt}}}},
		GenerationConfig: genCfg,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation endpoint returned %s", resp.Status)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	if len(decoded.Candidates) == 0 {
		return nil, fmt.Errorf("generation response has no candidates")
	}

	c.logger.WithFields(map[string]interface{}{
		"model":    model,
		"duration": time.Since(start).String(),
	}).Debug("Generation request complete")

	return &decoded, nil
}

// firstText returns the first non-empty text part of the first candidate.
func firstText(resp *generateResponse) string {
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// firstInlineData returns the first inline (image) part of the first candidate.
func firstInlineData(resp *generateResponse) *generateInline {
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil {
			return part.InlineData
		}
	}
	return nil
}

// extractJSON pulls the first JSON object out of model text, tolerating
// markdown fences and prose around it.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("model response contains no JSON object")
	}
	return text[start : end+1], nil
}
