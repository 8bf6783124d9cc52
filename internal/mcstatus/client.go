// Package mcstatus queries Minecraft Java server status and builds player
// asset URLs.
package mcstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"miyako-bot/internal/apperr"

	"go.uber.org/zap"
)

// maxListedPlayers is how many names the status API returns at most
const maxListedPlayers = 12

var (
	domainPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)+(:\d{1,5})?$`)
	ipv4Pattern   = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}(:\d{1,5})?$`)
	ipv6Patterns  = []*regexp.Regexp{
		regexp.MustCompile(`^\[([0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\](:\d{1,5})?$`),
		regexp.MustCompile(`^\[([0-9a-fA-F]{1,4}:){1,7}\](:\d{1,5})?$`),
		regexp.MustCompile(`^\[::([0-9a-fA-F]{1,4}:){0,6}[0-9a-fA-F]{1,4}\](:\d{1,5})?$`),
		regexp.MustCompile(`^\[([0-9a-fA-F]{1,4}:){1,6}:\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\](:\d{1,5})?$`),
	}
)

// ValidAddress reports whether addr is a domain, an IPv4 address or a
// bracketed IPv6 address, each with an optional port
func ValidAddress(addr string) bool {
	if domainPattern.MatchString(addr) || ipv4Pattern.MatchString(addr) {
		return true
	}
	for _, p := range ipv6Patterns {
		if p.MatchString(addr) {
			return true
		}
	}
	return false
}

// Status is a reachable server's state
type Status struct {
	Online  bool   `json:"online"`
	Host    string `json:"host"`
	IP      string `json:"ip_address"`
	Version struct {
		NameClean string `json:"name_clean"`
		Protocol  int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Online int `json:"online"`
		Max    int `json:"max"`
		List   []struct {
			NameClean string `json:"name_clean"`
		} `json:"list"`
	} `json:"players"`
	MOTD struct {
		Clean string `json:"clean"`
	} `json:"motd"`
}

// PlayerList renders online player names for an embed field
func (s *Status) PlayerList() string {
	if len(s.Players.List) == 0 {
		return "無法取得線上玩家，或目前無玩家在線。"
	}
	names := make([]string, 0, len(s.Players.List))
	for _, p := range s.Players.List {
		names = append(names, strings.ReplaceAll(p.NameClean, "_", `\_`))
	}
	return strings.Join(names, "、") + fmt.Sprintf("\n-# 一次僅顯示最多 %d 位玩家", maxListedPlayers)
}

type cached struct {
	status  *Status
	fetched time.Time
}

// Client handles status API requests with a short-lived cache
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.Mutex
	cache    map[string]cached
	cacheTTL time.Duration
}

// NewClient creates a status client for baseURL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		cache:      make(map[string]cached),
		cacheTTL:   time.Minute,
	}
}

// Status fetches the state of a Java edition server
func (c *Client) Status(ctx context.Context, address string) (*Status, error) {
	c.mu.Lock()
	if hit, ok := c.cache[address]; ok && time.Since(hit.fetched) < c.cacheTTL {
		c.mu.Unlock()
		c.logger.Debug("Using cached server status", zap.String("address", address))
		return hit.status, nil
	}
	c.mu.Unlock()

	url := fmt.Sprintf("%s/v2/status/java/%s", c.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Externalf(err, "無法連線到伺服器狀態服務")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, apperr.UserInputf("伺服器位址格式不正確，請檢查後重新輸入。")
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.Externalf(fmt.Errorf("status %d", resp.StatusCode), "伺服器狀態服務暫時無法使用")
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if !status.Online {
		return nil, apperr.Externalf(fmt.Errorf("%s offline", address), "伺服器離線。")
	}

	c.mu.Lock()
	c.cache[address] = cached{status: &status, fetched: time.Now()}
	c.mu.Unlock()

	return &status, nil
}

// IconURL returns the server favicon URL
func (c *Client) IconURL(address string) string {
	return fmt.Sprintf("%s/v2/icon/%s", c.baseURL, address)
}

// ClearCache drops every cached status
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cached)
}

// SkinRenderURL returns the full-body render of a player's skin
func SkinRenderURL(player string) string {
	return fmt.Sprintf("https://starlightskins.lunareclipse.studio/render/default/%s/full", player)
}

// AvatarURL returns a 64px head of the player's skin
func AvatarURL(player string) string {
	return fmt.Sprintf("https://minotar.net/avatar/%s/64.png", player)
}

// SkinDownloadURL returns the raw skin file download link
func SkinDownloadURL(player string) string {
	return fmt.Sprintf("https://minotar.net/download/%s", player)
}
