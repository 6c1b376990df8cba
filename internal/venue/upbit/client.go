package upbit

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"kimp/internal/venue"
)

const (
	defaultBaseURL = "https://api.upbit.com/v1"

	takerFee = 0.0005 // 0.05%
	makerFee = 0.0005
)

// Client talks to the Upbit KRW spot REST API. Authenticated endpoints use
// a signed bearer token carrying a SHA512 hash of the query string.
type Client struct {
	baseURL    string
	httpClient *http.Client
	accessKey  string
	secretKey  string
}

// NewClient constructs an Upbit connector. Empty keys are allowed; such a
// client can only serve public market-data calls.
func NewClient(accessKey, secretKey string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		accessKey:  strings.TrimSpace(accessKey),
		secretKey:  strings.TrimSpace(secretKey),
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

func (c *Client) Name() string      { return "upbit" }
func (c *Client) TakerFee() float64 { return takerFee }
func (c *Client) MakerFee() float64 { return makerFee }

func (c *Client) hasCredentials() bool {
	return c.accessKey != "" && c.secretKey != ""
}

// authToken builds the signed bearer token. The token payload must never
// include the secret itself, only the query hash.
func (c *Client) authToken(query url.Values) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
	}
	if len(query) > 0 {
		sum := sha512.Sum512([]byte(query.Encode()))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.secretKey))
	if err != nil {
		return "", fmt.Errorf("signing upbit token failed: %w", err)
	}
	return token, nil
}

// do performs one request against the Upbit API. POST bodies are sent as
// JSON but signed over their urlencoded form, matching the venue's scheme.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, auth bool, op string) (gjson.Result, error) {
	if auth && !c.hasCredentials() {
		return gjson.Result{}, &venue.AuthError{Venue: c.Name(), Op: op}
	}

	endpoint := c.baseURL + path
	var body io.Reader
	if method == http.MethodPost {
		payload := make(map[string]string, len(query))
		for k := range query {
			payload[k] = query.Get(k)
		}
		buf, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encoding upbit request failed: %w", err)
		}
		body = bytes.NewReader(buf)
	} else if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("building upbit request failed: %w", err)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, err := c.authToken(query)
		if err != nil {
			return gjson.Result{}, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("calling upbit failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading upbit response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return gjson.Result{}, &venue.APIError{Venue: c.Name(), Status: resp.StatusCode, Message: msg}
	}
	return gjson.ParseBytes(data), nil
}
