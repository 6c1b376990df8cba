package fx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultRate is the USD/KRW fallback used before the first successful
// fetch.
const DefaultRate = 1350.0

// Source provides the USD/KRW exchange rate.
type Source interface {
	USDKRW(ctx context.Context) (float64, error)
}

// Client fetches the rate from the open.er-api.com free endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		baseURL:    "https://open.er-api.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBaseURL overrides the endpoint, used by tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// SetHTTPClient overrides the transport, used by tests.
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

func (c *Client) USDKRW(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v6/latest/USD", nil)
	if err != nil {
		return 0, fmt.Errorf("building fx request failed: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching fx rate failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading fx response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("fx endpoint returned status %d", resp.StatusCode)
	}
	rate := gjson.GetBytes(body, "rates.KRW").Float()
	if rate <= 0 {
		return 0, fmt.Errorf("fx response missing KRW rate")
	}
	return rate, nil
}

var _ Source = (*Client)(nil)
