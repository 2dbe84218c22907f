package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vpcollector/internal/okx/stream"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// GetInstruments fetches instrument metadata (tick size, lot size) for the
// given instrument type, e.g. "SPOT".
func (c *RESTClient) GetInstruments(ctx context.Context, instType string) ([]InstrumentInfo, error) {
	endpoint := fmt.Sprintf("%s/api/v5/public/instruments?instType=%s", c.baseURL, instType)

	data, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var instruments []InstrumentInfo
	if err := json.Unmarshal(data, &instruments); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}
	return instruments, nil
}

// GetRecentTrades fetches up to limit recent trades for one instrument,
// newest first. The payload shape matches the trades WebSocket channel.
func (c *RESTClient) GetRecentTrades(ctx context.Context, instID string, limit int) ([]stream.Trade, error) {
	endpoint := fmt.Sprintf("%s/api/v5/market/trades?instId=%s&limit=%d", c.baseURL, instID, limit)

	data, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var trades []stream.Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	return trades, nil
}

// get executes one GET against the v5 API and unwraps the response envelope.
func (c *RESTClient) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("okx error: %s", body)
	}

	var rawResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rawResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if rawResp.Code != "0" {
		return nil, fmt.Errorf("okx error code %s: %s", rawResp.Code, rawResp.Msg)
	}

	return rawResp.Data, nil
}
