package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vscord/discord-gateway-go/wire"
)

// DefaultAPIBase is the versioned REST endpoint matching the Gateway
// protocol version.
const DefaultAPIBase = "https://discord.com/api/v10"

// APIClient talks to the Discord REST API. It works without a live Gateway
// connection: the setup flow uses it to probe the authenticated identity
// and to discover the Gateway URL before the socket is opened. No rate-limit
// handling, callers issue occasional single requests.
type APIClient struct {
	base       string
	token      string
	httpClient *http.Client
}

// NewAPIClient creates a REST client for the given bearer token. An empty
// base selects the public API.
func NewAPIClient(base, token string) *APIClient {
	if base == "" {
		base = DefaultAPIBase
	}
	return &APIClient{
		base:       strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GatewayURL asks the REST API where the real-time Gateway lives.
func (c *APIClient) GatewayURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.getJSON(ctx, "/gateway", &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// CurrentUser fetches the identity behind the stored token.
func (c *APIClient) CurrentUser(ctx context.Context) (User, error) {
	var u wire.User
	if err := c.getJSON(ctx, "/users/@me", &u); err != nil {
		return User{}, err
	}
	return userFromWire(u), nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
