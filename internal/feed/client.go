package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	pricesPath    = "/items/prices/"
	balancePath   = "/balance/"
	purchasesPath = "/purchases/"
)

// UpstreamError is a non-2xx response from the marketplace API. Status
// and body are propagated so callers can render the denial verbatim.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("marketplace error (%d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("marketplace error (%d)", e.Status)
}

// ClientOptions parameterise the marketplace client.
type ClientOptions struct {
	BaseURL        string
	APIKey         string
	Secret         string
	FeedTimeout    time.Duration
	BalanceTimeout time.Duration
	SubmitTimeout  time.Duration
	UserAgent      string
}

// Client talks to the upstream marketplace REST API.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a marketplace client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.FeedTimeout <= 0 {
		opts.FeedTimeout = 45 * time.Second
	}
	if opts.BalanceTimeout <= 0 {
		opts.BalanceTimeout = 10 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "market_client").Logger(),
		client:  &http.Client{},
		baseURL: baseURL,
	}
}

// FetchPrices retrieves the raw price list in upstream feed order.
func (c *Client) FetchPrices(ctx context.Context) ([]PriceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FeedTimeout)
	defer cancel()

	var payload struct {
		Items []PriceRecord `json:"items"`
	}
	if err := c.getJSON(ctx, pricesPath, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// FetchBalance retrieves the current settlement balance.
func (c *Client) FetchBalance(ctx context.Context) (Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.BalanceTimeout)
	defer cancel()

	var bal Balance
	if err := c.getJSON(ctx, balancePath, &bal); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// SubmitPurchase signs and posts one deal submission. Success is 200 or
// 201 with an id/deal_id in the body; anything else is an *UpstreamError.
func (c *Client) SubmitPurchase(ctx context.Context, req PurchaseRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SubmitTimeout)
	defer cancel()

	params := map[string]string{
		"product":   req.Product,
		"partner":   req.Partner,
		"token":     req.Token,
		"max_price": strconv.FormatInt(req.MaxPrice, 10),
		"custom_id": req.CustomID,
	}
	sign := Sign(params, c.opts.Secret)

	body, err := json.Marshal(struct {
		Product  string `json:"product"`
		Partner  string `json:"partner"`
		Token    string `json:"token"`
		MaxPrice int64  `json:"max_price"`
		CustomID string `json:"custom_id"`
		Sign     string `json:"sign"`
	}{req.Product, req.Partner, req.Token, req.MaxPrice, req.CustomID, sign})
	if err != nil {
		return "", fmt.Errorf("marshal purchase payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+purchasesPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create purchase request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit purchase: %w", err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read purchase response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payloadBytes))}
	}

	var result struct {
		ID     string `json:"id"`
		DealID string `json:"deal_id"`
	}
	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return "", fmt.Errorf("parse purchase response: %w", err)
	}

	dealID := result.ID
	if dealID == "" {
		dealID = result.DealID
	}

	c.logger.Info().Str("custom_id", req.CustomID).Str("deal_id", dealID).Msg("purchase accepted upstream")
	return dealID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payloadBytes))}
	}

	if err := json.Unmarshal(payloadBytes, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
}

var (
	_ PriceFeed     = (*Client)(nil)
	_ BalanceFeed   = (*Client)(nil)
	_ DealSubmitter = (*Client)(nil)
)
