package projectx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/topsignal/trader-go/pkg/timeutil"
)

// Config holds client construction options. Tokens defaults to the
// process-wide cache so every client for the same credentials shares one
// session token.
type Config struct {
	BaseURL  string
	Username string
	APIKey   string
	Timeout  time.Duration
	Log      zerolog.Logger
	Tokens   *TokenCache
}

// Client is a thin HTTP wrapper around the documented ProjectX Gateway
// endpoints. The gateway is POST-only, even for reads.
type Client struct {
	baseURL  string
	username string
	apiKey   string
	client   *http.Client
	tokens   *TokenCache
	log      zerolog.Logger
}

// NewClient creates a new gateway client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = sharedTokens
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		tokens:   tokens,
		log:      cfg.Log.With().Str("client", "projectx").Logger(),
	}
}

// ready reports missing credentials by their canonical env var names.
func (c *Client) ready() error {
	var missing []string
	if c.baseURL == "" {
		missing = append(missing, "PROJECTX_API_BASE_URL")
	}
	if c.username == "" {
		missing = append(missing, "PROJECTX_USERNAME")
	}
	if c.apiKey == "" {
		missing = append(missing, "PROJECTX_API_KEY")
	}
	if len(missing) > 0 {
		return newClientError("missing gateway configuration in environment: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ListAccounts returns the tradeable accounts visible to these credentials,
// sorted by id.
func (c *Client) ListAccounts() ([]Account, error) {
	data, err := c.post("/api/Account/search", map[string]interface{}{"onlyActiveAccounts": true}, true)
	if err != nil {
		return nil, err
	}

	var accounts []Account
	for _, rowRaw := range unwrapList(data, []string{"accounts", "data", "items"}) {
		row, ok := rowRaw.(map[string]interface{})
		if !ok {
			continue
		}

		// Keep this filter even with onlyActiveAccounts=true.
		if canTrade, ok := row["canTrade"].(bool); ok && !canTrade {
			continue
		}

		id, ok := safeInt(firstValue(row, []string{"id", "accountId", "account_id"}))
		if !ok {
			continue
		}

		status := stringOrEmpty(firstValue(row, []string{"status", "state", "accountStatus"}))
		if status == "" {
			if canTrade, ok := row["canTrade"].(bool); ok && canTrade {
				status = "ACTIVE"
			} else {
				status = "UNKNOWN"
			}
		}

		name := stringOrEmpty(firstValue(row, []string{"name", "accountName", "displayName"}))
		if name == "" {
			name = fmt.Sprintf("Account %d", id)
		}

		accounts = append(accounts, Account{
			ID:   id,
			Name: name,
			Balance: safeFloat(firstValue(row, []string{
				"balance", "cashBalance", "netLiquidatingValue", "equity", "availableBalance",
			})),
			Status: status,
		})
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// FetchTradeHistory returns normalized, non-voided trade events for the
// account, sorted by timestamp ascending. end, limit and offset are optional.
func (c *Client) FetchTradeHistory(accountID int64, start time.Time, end *time.Time, limit, offset *int) ([]TradeEvent, error) {
	payload := map[string]interface{}{
		"accountId":      accountID,
		"startTimestamp": timeutil.ISOUTC(start),
	}
	if end != nil {
		payload["endTimestamp"] = timeutil.ISOUTC(*end)
	}
	if limit != nil {
		l := *limit
		if l < 1 {
			l = 1
		}
		payload["limit"] = l
	}
	if offset != nil {
		o := *offset
		if o < 0 {
			o = 0
		}
		payload["offset"] = o
	}

	data, err := c.post("/api/Trade/search", payload, true)
	if err != nil {
		return nil, err
	}

	var events []TradeEvent
	for _, rowRaw := range unwrapList(data, []string{"trades", "data", "items"}) {
		row, ok := rowRaw.(map[string]interface{})
		if !ok {
			continue
		}
		event, ok := NormalizeTradeEvent(row, accountID)
		if !ok {
			continue
		}
		// Voided executions must not affect local history or P&L.
		if event.Voided {
			continue
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}

// StreamUserTrades polls trade history and emits each execution once,
// keeping a stream-shaped API without a SignalR client. The returned channel
// closes when ctx is cancelled. Poll failures are logged and retried.
func (c *Client) StreamUserTrades(ctx context.Context, accountID int64, start *time.Time, pollInterval time.Duration) <-chan TradeEvent {
	if pollInterval < time.Second {
		pollInterval = time.Second
	}

	out := make(chan TradeEvent)
	go func() {
		defer close(out)

		watermark := time.Now().UTC().Add(-15 * time.Minute)
		if start != nil {
			watermark = start.UTC()
		}
		seenAtWatermark := map[string]struct{}{}

		for {
			// One second of lookback so boundary events are never missed.
			events, err := c.FetchTradeHistory(accountID, watermark.Add(-time.Second), nil, nil, nil)
			if err != nil {
				c.log.Error().Err(err).Int64("account_id", accountID).Msg("Trade poll failed")
			}

			for _, event := range events {
				if event.Timestamp.Before(watermark) {
					continue
				}
				if event.Timestamp.Equal(watermark) {
					if _, seen := seenAtWatermark[event.OrderID]; seen {
						continue
					}
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}

				if event.Timestamp.After(watermark) {
					watermark = event.Timestamp
					seenAtWatermark = map[string]struct{}{event.OrderID: {}}
				} else {
					seenAtWatermark[event.OrderID] = struct{}{}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
		}
	}()
	return out
}

// post performs an authenticated POST, retrying exactly once after a 401 by
// clearing the shared token cache.
func (c *Client) post(path string, payload interface{}, withAuth bool) (interface{}, error) {
	data, err := c.postOnce(path, payload, withAuth)
	if err != nil {
		var clientErr *ClientError
		if withAuth && errors.As(err, &clientErr) && clientErr.StatusCode != nil && *clientErr.StatusCode == http.StatusUnauthorized {
			c.log.Warn().Msg("Session token rejected, re-authenticating")
			c.tokens.Clear()
			return c.postOnce(path, payload, withAuth)
		}
		return nil, err
	}
	return data, nil
}

func (c *Client) postOnce(path string, payload interface{}, withAuth bool) (interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	if withAuth {
		token, err := c.accessToken()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newClientError("gateway network error: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newClientError("gateway response read failed: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, "gateway request failed (%d): %s", resp.StatusCode, extractErrorMessage(raw))
	}

	if strings.TrimSpace(string(raw)) == "" {
		return map[string]interface{}{}, nil
	}

	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, newClientError("gateway returned a non-JSON response")
	}

	// The gateway wraps some errors in a 200 with success=false.
	if obj, ok := parsed.(map[string]interface{}); ok {
		if success, ok := obj["success"].(bool); ok && !success {
			return nil, newClientError("gateway error: %s", extractFromValue(obj))
		}
	}

	return parsed, nil
}

// accessToken returns a cached session token, logging in when the cache is
// empty or inside the safety window.
func (c *Client) accessToken() (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if token, ok := c.tokens.Get(now); ok {
		return token, nil
	}

	data, err := c.postOnce("/api/Auth/loginKey", map[string]interface{}{
		"userName": c.username,
		"apiKey":   c.apiKey,
	}, false)
	if err != nil {
		return "", err
	}

	obj, ok := data.(map[string]interface{})
	if !ok {
		return "", newClientError("gateway auth response format was invalid")
	}

	token := stringOrEmpty(firstValue(obj, []string{"token", "accessToken", "jwt", "jwtToken"}))
	if token == "" {
		return "", newClientError("gateway auth succeeded but no token was returned")
	}

	c.tokens.Set(token, parseTokenExpiry(obj, now))
	return token, nil
}
