// Package zalo implements the chat-platform messaging relay: exchanging the
// long-lived refresh token for a short-lived access token at the OAuth
// endpoint, then posting a message to a chat user. The refresh token
// rotates on every exchange; the rotated value is persisted through the
// credential store before the access token is used.
package zalo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mekonggpt/retrieval-go/internal/creds"
)

// ErrNoAccessToken is returned when the token exchange response carries no
// access token. This is a hard failure of the whole send.
var ErrNoAccessToken = errors.New("zalo: token exchange returned no access token")

// defaultOAuthURL is the production token exchange endpoint.
const defaultOAuthURL = "https://oauth.zaloapp.com/v4/oa/access_token"

// defaultMessageURL is the production chat-send endpoint.
const defaultMessageURL = "https://openapi.zalo.me/v3.0/oa/message/cs"

// Config holds the settings for constructing a Client.
type Config struct {
	// SecretKey authenticates the token exchange (secret_key header).
	SecretKey string
	// AppID is the fixed application identifier sent with each exchange.
	AppID string
	// OAuthURL overrides the token exchange endpoint. Tests point this at
	// a local httptest server.
	OAuthURL string
	// MessageURL overrides the chat-send endpoint.
	MessageURL string
	// HTTPTimeout bounds each outbound call (default: 30s).
	HTTPTimeout time.Duration
}

// Client is the messaging relay. It is safe for concurrent use; the token
// read-exchange-persist sequence is serialized so two overlapping sends
// cannot clobber each other's rotated refresh token.
type Client struct {
	// cfg holds the resolved relay configuration.
	cfg *Config
	// store holds the mutable refresh token.
	store creds.Store
	// client is the shared HTTP client with a bounded timeout.
	client *http.Client
	// mu serializes token acquisition across concurrent sends.
	mu sync.Mutex
}

// New constructs a Client using the given credential store and config.
func New(store creds.Store, cfg *Config) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("zalo: credential store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = defaultOAuthURL
	}
	if cfg.MessageURL == "" {
		cfg.MessageURL = defaultMessageURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// Send acquires a fresh access token and posts one message to the chat
// user. Each call performs its own token exchange — access tokens live for
// exactly one outbound send and are never cached.
func (c *Client) Send(ctx context.Context, userID, text string) error {
	accessToken, err := c.acquireToken(ctx)
	if err != nil {
		return err
	}
	return c.sendMessage(ctx, accessToken, userID, text)
}

// acquireToken runs the serialized read-exchange-persist sequence and
// returns the short-lived access token.
func (c *Client) acquireToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	refreshToken, err := c.store.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("zalo: read refresh token: %w", err)
	}

	return c.exchangeToken(ctx, refreshToken)
}

// tokenResponse is the JSON body returned by the OAuth exchange endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// exchangeToken posts the form-encoded exchange request and persists the
// rotated refresh token before returning the access token. A response
// without an access token fails the entire send.
func (c *Client) exchangeToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{}
	form.Set("refresh_token", refreshToken)
	form.Set("app_id", c.cfg.AppID)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("zalo: create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("secret_key", c.cfg.SecretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("zalo: token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("zalo: decode exchange response: %w", err)
	}
	if result.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	// The store performs rotation: the returned refresh token replaces the
	// one just spent, and must be saved before the access token is used.
	if result.RefreshToken != "" {
		if err := c.store.SetRefreshToken(ctx, result.RefreshToken); err != nil {
			return "", fmt.Errorf("zalo: persist rotated refresh token: %w", err)
		}
	}

	return result.AccessToken, nil
}

// message is the JSON body for the chat-send endpoint.
type message struct {
	Recipient struct {
		UserID string `json:"user_id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// sendMessage posts one text message to the chat user using accessToken.
func (c *Client) sendMessage(ctx context.Context, accessToken, userID, text string) error {
	var body message
	body.Recipient.UserID = userID
	body.Message.Text = text

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("zalo: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.MessageURL,
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("zalo: create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("zalo: send message failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("zalo: send message: HTTP %d", resp.StatusCode)
	}

	return nil
}
