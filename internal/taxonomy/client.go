package taxonomy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	apiKeyHeader    = "X-Api-Key"
	defaultPageSize = 100
	// maxPages bounds pagination so a misbehaving upstream cannot loop forever.
	maxPages = 50
)

// Client calls the taxonomy API directly.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a client limited to rps requests per second.
func NewClient(baseURL, apiKey string, rps float64, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// VehicleTypes lists the top level vehicle types (car, van, ...).
func (c *Client) VehicleTypes(ctx context.Context) ([]Option, error) {
	return listAll[Option](ctx, c, "vehicle-types", nil)
}

// Makes lists manufacturers for a vehicle type.
func (c *Client) Makes(ctx context.Context, vehicleType string) ([]Option, error) {
	return listAll[Option](ctx, c, "makes", url.Values{"vehicleType": {vehicleType}})
}

// Models lists models for a make.
func (c *Client) Models(ctx context.Context, makeID string) ([]Option, error) {
	return listAll[Option](ctx, c, "models", url.Values{"make": {makeID}})
}

// Generations lists generations of a model.
func (c *Client) Generations(ctx context.Context, model string) ([]Option, error) {
	return listAll[Option](ctx, c, "generations", url.Values{"model": {model}})
}

// Derivatives lists every derivative of a generation.
func (c *Client) Derivatives(ctx context.Context, generation string) ([]Derivative, error) {
	return listAll[Derivative](ctx, c, "derivatives", url.Values{"generation": {generation}})
}

// Years lists registration years available for a derivative.
func (c *Client) Years(ctx context.Context, derivative string) ([]YearOption, error) {
	return listAll[YearOption](ctx, c, "years", url.Values{"derivative": {derivative}})
}

// Value requests a valuation.
func (c *Client) Value(ctx context.Context, req ValuationRequest) (Valuation, error) {
	var out Valuation
	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, "valuations", nil, bytes.NewReader(body), &out)
	return out, err
}

func listAll[T any](ctx context.Context, c *Client, resource string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	var all []T
	for n := 1; n <= maxPages; n++ {
		query.Set("page", strconv.Itoa(n))
		query.Set("pageSize", strconv.Itoa(defaultPageSize))
		var p page[T]
		if err := c.do(ctx, http.MethodGet, resource, query, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if p.TotalPages <= n || len(p.Items) == 0 {
			return all, nil
		}
	}
	return nil, fmt.Errorf("%w: %s exceeded %d pages", ErrUnavailable, resource, maxPages)
}

func (c *Client) do(ctx context.Context, method, resource string, query url.Values, body io.Reader, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	endpoint := c.baseURL + "/" + resource
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Resource: resource, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("taxonomy %s: decode: %w", resource, err)
	}
	return nil
}
