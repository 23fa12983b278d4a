// Package pendle is the REST client for the hosted Pendle API, which
// provides market discovery and transaction building for PT/YT mints and
// redemptions.
package pendle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

// Client is the REST client for the Pendle hosted API.
type Client struct {
	baseURL    string
	chainID    int64
	httpClient *http.Client
}

// NewClient creates a new Pendle API client.
//
// baseURL is the API root, e.g. "https://api-v2.pendle.finance/core".
func NewClient(baseURL string, chainID int64) *Client {
	return &Client{
		baseURL: baseURL,
		chainID: chainID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ActiveMarkets returns the unexpired markets on the configured chain.
func (c *Client) ActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	path := fmt.Sprintf("/v1/%d/markets/active", c.chainID)

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("pendle: get active markets: %w", err)
	}

	var resp activeMarketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("pendle: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp.Markets))
	for i := range resp.Markets {
		m, err := resp.Markets[i].ToDomainMarket(c.chainID)
		if err != nil {
			// Skip malformed entries rather than failing the whole refresh.
			continue
		}
		markets = append(markets, m)
	}

	return markets, nil
}

// MintQuote asks the API to build a mint transaction converting amountIn of
// tokenIn into PT and YT on market, delivered to receiver. slippage is a
// fraction in [0,1).
func (c *Client) MintQuote(ctx context.Context, market, receiver, tokenIn string, amountIn string, slippage float64) (domain.MintQuote, error) {
	params := url.Values{}
	params.Set("receiver", receiver)
	params.Set("yt", "") // resolved server-side from the market
	params.Set("slippage", strconv.FormatFloat(slippage, 'f', -1, 64))
	params.Set("tokenIn", tokenIn)
	params.Set("amountIn", amountIn)
	params.Set("enableAggregator", "true")

	path := fmt.Sprintf("/v1/sdk/%d/markets/%s/mint?%s", c.chainID, url.PathEscape(market), params.Encode())

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.MintQuote{}, fmt.Errorf("pendle: mint quote for %s: %w", market, err)
	}

	var resp sdkTxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.MintQuote{}, fmt.Errorf("pendle: decode mint quote: %w", err)
	}

	return resp.ToMintQuote()
}

// RedeemTx asks the API to build a transaction redeeming amountPt of mature
// PT on market back into tokenOut for receiver.
func (c *Client) RedeemTx(ctx context.Context, market, receiver, tokenOut string, amountPt string, slippage float64) (domain.RedemptionTx, error) {
	params := url.Values{}
	params.Set("receiver", receiver)
	params.Set("slippage", strconv.FormatFloat(slippage, 'f', -1, 64))
	params.Set("tokenOut", tokenOut)
	params.Set("amountIn", amountPt)
	params.Set("enableAggregator", "true")

	path := fmt.Sprintf("/v1/sdk/%d/markets/%s/redeem?%s", c.chainID, url.PathEscape(market), params.Encode())

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.RedemptionTx{}, fmt.Errorf("pendle: redeem tx for %s: %w", market, err)
	}

	var resp sdkTxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RedemptionTx{}, fmt.Errorf("pendle: decode redeem tx: %w", err)
	}

	return resp.ToRedemptionTx()
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Pendle API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps HTTP error statuses onto domain sentinel errors so
// callers can use errors.Is.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
