// Package hitokoto fetches random quotes and converts them to Taiwan
// Traditional Chinese.
package hitokoto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/longbridgeapp/opencc"
	"go.uber.org/zap"
)

// Quote is one converted sentence and its source
type Quote struct {
	Text string
	From string
}

type quoteResponse struct {
	Hitokoto string `json:"hitokoto"`
	From     string `json:"from"`
}

// Client handles quote API requests
type Client struct {
	baseURL    string
	httpClient *http.Client
	converter  *opencc.OpenCC
	logger     *zap.Logger
}

// NewClient creates a quote client for baseURL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	converter, err := opencc.New("s2twp")
	if err != nil {
		return nil, fmt.Errorf("failed to load script converter: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		converter:  converter,
		logger:     logger,
	}, nil
}

// Random fetches one quote
func (c *Client) Random(ctx context.Context) (*Quote, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API returned status %d", resp.StatusCode)
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	text, err := c.converter.Convert(qr.Hitokoto)
	if err != nil {
		return nil, fmt.Errorf("failed to convert quote: %w", err)
	}
	from, err := c.converter.Convert(qr.From)
	if err != nil {
		return nil, fmt.Errorf("failed to convert quote source: %w", err)
	}

	c.logger.Debug("Fetched quote", zap.String("from", from))
	return &Quote{Text: text, From: from}, nil
}
