// Package pinning uploads NFT metadata and images to a Pinata-compatible
// pinning service and builds public gateway URLs for the resulting content
// identifiers.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/fishit-backend/internal/config"
	"github.com/fishit-backend/internal/logging"
)

// Client talks to the pinning service's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	gatewayURL string
	apiKey     string
	secretKey  string
	logger     *logging.Logger
}

// NewClient builds a pinning client from configuration.
func NewClient(cfg *config.PinningConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		logger:     logger,
	}
}

// pinResponse is the service's reply to a successful pin.
type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// TestAuthentication verifies the configured credentials. Called once at
// startup; a failure must abort the boot.
func (c *Client) TestAuthentication(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/testAuthentication", nil)
	if err != nil {
		return err
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authentication request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pinning service rejected credentials: %s", resp.Status)
	}

	return nil
}

// PinJSON pins an arbitrary JSON payload and returns its content identifier.
func (c *Client) PinJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"pinataContent":  payload,
		"pinataMetadata": map[string]string{"name": name},
		"pinataOptions":  map[string]int{"cidVersion": 1},
	})
	if err != nil {
		return "", fmt.Errorf("marshal pin payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	return c.doPin(req)
}

// PinFile pins raw file bytes (multipart upload) and returns the content
// identifier.
func (c *Client) PinFile(ctx context.Context, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}

	meta, _ := json.Marshal(map[string]string{"name": strings.TrimSuffix(name, ".png")})
	if err := writer.WriteField("pinataMetadata", string(meta)); err != nil {
		return "", err
	}
	opts, _ := json.Marshal(map[string]int{"cidVersion": 1})
	if err := writer.WriteField("pinataOptions", string(opts)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinFileToIPFS", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuth(req)

	return c.doPin(req)
}

// GatewayURL returns the public gateway URL for a content identifier.
func (c *Client) GatewayURL(cid string) string {
	return c.gatewayURL + "/" + cid
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.secretKey)
}

func (c *Client) doPin(req *http.Request) (string, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(body) > 0 {
			return "", fmt.Errorf("pin failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		return "", fmt.Errorf("pin failed: %s", resp.Status)
	}

	var decoded pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode pin response: %w", err)
	}
	if decoded.IpfsHash == "" {
		return "", fmt.Errorf("pin response has no content identifier")
	}

	c.logger.WithFields(map[string]interface{}{
		"cid":      decoded.IpfsHash,
		"duration": time.Since(start).String(),
	}).Debug("Pin complete")

	return decoded.IpfsHash, nil
}
