package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"kimp/internal/venue"
)

const (
	defaultBaseURL = "https://api.bybit.com"
	recvWindow     = 5000

	takerFee = 0.00055 // 0.055%
	makerFee = 0.0001
)

// Category selects the Bybit V5 product line.
type Category string

const (
	CategorySpot   Category = "spot"
	CategoryLinear Category = "linear"
)

// Client talks to the Bybit V5 REST API. Authenticated requests carry an
// HMAC-SHA256 signature over timestamp, key, receive window and payload.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	secretKey  string
	category   Category
	now        func() time.Time
}

// NewClient constructs a Bybit connector for one product category. Empty
// keys restrict the client to public market-data calls.
func NewClient(apiKey, secretKey string, category Category) *Client {
	if category == "" {
		category = CategorySpot
	}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		category:   category,
		now:        time.Now,
	}
}

// SetBaseURL overrides the API endpoint for testing.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Name() string      { return "bybit" }
func (c *Client) TakerFee() float64 { return takerFee }
func (c *Client) MakerFee() float64 { return makerFee }

func (c *Client) hasCredentials() bool {
	return c.apiKey != "" && c.secretKey != ""
}

func (c *Client) sign(payload string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + c.apiKey + strconv.Itoa(recvWindow) + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) authHeaders(req *http.Request, payload string) {
	ts := c.now().UnixMilli()
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("X-BAPI-SIGN", c.sign(payload, ts))
}

// get performs a GET request; the signature payload is the sorted query string.
func (c *Client) get(ctx context.Context, path string, params map[string]string, auth bool, op string) (gjson.Result, error) {
	if auth && !c.hasCredentials() {
		return gjson.Result{}, &venue.AuthError{Venue: c.Name(), Op: op}
	}
	query := sortedQuery(params)
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("building bybit request failed: %w", err)
	}
	if auth {
		c.authHeaders(req, query)
	}
	return c.send(req)
}

// post performs an authenticated POST; the signature payload is the raw JSON body.
func (c *Client) post(ctx context.Context, path string, body map[string]any, op string) (gjson.Result, error) {
	if !c.hasCredentials() {
		return gjson.Result{}, &venue.AuthError{Venue: c.Name(), Op: op}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encoding bybit request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("building bybit request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authHeaders(req, string(buf))
	return c.send(req)
}

// send executes the request and unwraps the V5 envelope. A nonzero retCode
// becomes an APIError carrying the venue message.
func (c *Client) send(req *http.Request) (gjson.Result, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("calling bybit failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading bybit response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return gjson.Result{}, &venue.APIError{Venue: c.Name(), Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	parsed := gjson.ParseBytes(data)
	if code := parsed.Get("retCode").Int(); code != 0 {
		return gjson.Result{}, &venue.APIError{Venue: c.Name(), Status: int(code), Message: parsed.Get("retMsg").String()}
	}
	return parsed.Get("result"), nil
}

func sortedQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
