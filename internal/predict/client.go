// Package predict is the HTTP client for the remote letter-prediction service.
package predict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Default timeouts for the shared transport.
const (
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// ErrMalformedResponse is returned when a 2xx body is not a usable prediction.
var ErrMalformedResponse = errors.New("malformed prediction response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("prediction service returned %d", e.Code)
	}
	return fmt.Sprintf("prediction service returned %d: %s", e.Code, e.Body)
}

// Result is one prediction.
type Result struct {
	Label string
	// Confidence is only meaningful when HasConfidence is true.
	Confidence    float64
	HasConfidence bool
}

// Predictor turns a landmark set into a prediction.
type Predictor interface {
	Predict(ctx context.Context, points [][3]float64) (Result, error)
}

// Client talks to a prediction endpoint such as http://localhost:8080/predict.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a Client for endpoint. When hc is nil a client with
// connect and keepalive timeouts is used; request deadlines come from ctx.
func NewClient(endpoint string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DefaultConnectTimeout,
					KeepAlive: DefaultKeepAlive,
				}).DialContext,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       DefaultIdleConnTimeout,
				ExpectContinueTimeout: time.Second,
			},
		}
	}
	return &Client{endpoint: endpoint, http: hc}
}

// Endpoint returns the prediction URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	Points [][3]float64 `json:"points"`
}

// response keeps letter and confidence raw so their JSON types can be checked.
type response struct {
	Letter     jsoniter.RawMessage `json:"letter"`
	Confidence jsoniter.RawMessage `json:"confidence"`
}

// Predict POSTs {"points": [[x,y,z],...]} and decodes {"letter", "confidence"}.
func (c *Client) Predict(ctx context.Context, points [][3]float64) (Result, error) {
	body, err := json.Marshal(request{Points: points})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post prediction: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	return decodeResult(data)
}

func decodeResult(data []byte) (Result, error) {
	var raw response
	if err := json.Unmarshal(data, &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var res Result
	if len(raw.Letter) == 0 || raw.Letter[0] != '"' {
		return Result{}, fmt.Errorf("%w: letter is not a string", ErrMalformedResponse)
	}
	if err := json.Unmarshal(raw.Letter, &res.Label); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(raw.Confidence) > 0 && string(raw.Confidence) != "null" {
		if err := json.Unmarshal(raw.Confidence, &res.Confidence); err != nil {
			return Result{}, fmt.Errorf("%w: confidence is not a number", ErrMalformedResponse)
		}
		res.HasConfidence = true
	}
	return res, nil
}

// Health checks GET <base>/health on the same host as the prediction endpoint.
func (c *Client) Health(ctx context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/predict") + "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}
	if status.Status != "ok" {
		return fmt.Errorf("prediction service status %q", status.Status)
	}
	return nil
}
