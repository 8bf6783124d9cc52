// Package ipapi looks up geolocation and network details of an IP address.
package ipapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"miyako-bot/internal/apperr"

	"go.uber.org/zap"
)

const fields = "status,message,country,city,isp,as,mobile,proxy,hosting"

// Info is the lookup result for one address
type Info struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
	AS      string `json:"as"`
	Mobile  bool   `json:"mobile"`
	Proxy   bool   `json:"proxy"`
	Hosting bool   `json:"hosting"`
}

// Client handles IP lookup requests
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a lookup client for baseURL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Lookup queries address. An upstream "fail" status is returned as an
// External error carrying the upstream message.
func (c *Client) Lookup(ctx context.Context, address string) (*Info, error) {
	u := fmt.Sprintf("%s/json/%s?fields=%s", c.baseURL, url.PathEscape(address), fields)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Externalf(err, "無法連線到位址查詢服務")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Externalf(fmt.Errorf("status %d", resp.StatusCode), "位址查詢服務暫時無法使用")
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}

	if info.Status != "success" {
		reason := info.Message
		if reason == "" {
			reason = "未知錯誤"
		}
		return nil, apperr.Externalf(errors.New(reason), "無法查詢位址 %s，原因：%s", address, reason)
	}

	c.logger.Debug("IP lookup finished", zap.String("address", address), zap.String("as", info.AS))
	return &info, nil
}

// YesNo renders a flag the way the embed shows it
func YesNo(v bool) string {
	if v {
		return "是"
	}
	return "否"
}

// Location returns "country, city"
func (i *Info) Location() string {
	return fmt.Sprintf("%s, %s", i.Country, i.City)
}
