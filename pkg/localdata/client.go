// Package localdata is a client for the Local Business Data API on
// RapidAPI, which fronts Google Maps listing search.
package localdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Default host for the RapidAPI gateway.
const defaultHost = "local-business-data.p.rapidapi.com"

// Client defines the Local Business Data operations.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]Business, error)
	BusinessDetails(ctx context.Context, businessID string) (*Business, error)
}

// SearchRequest are the query parameters for GET /search.
type SearchRequest struct {
	Query  string  // e.g. "24 hour plumber in Dallas, TX"
	Region string  // country code, defaults to "us"
	Limit  int     // max results, defaults to 50
	Lat    float64 // optional location bias
	Lng    float64
}

// Business is one listing in the API response.
type Business struct {
	BusinessID   string              `json:"business_id"`
	PlaceID      string              `json:"place_id"`
	Name         string              `json:"name"`
	PhoneNumber  string              `json:"phone_number"`
	Website      string              `json:"website"`
	FullAddress  string              `json:"full_address"`
	City         string              `json:"city"`
	State        string              `json:"state"`
	Zipcode      string              `json:"zipcode"`
	PostalCode   string              `json:"postal_code"`
	Rating       float64             `json:"rating"`
	ReviewCount  int                 `json:"review_count"`
	Type         string              `json:"type"`
	Verified     bool                `json:"verified"`
	WorkingHours map[string][]string `json:"working_hours"`
	About        *About              `json:"about"`
}

// About carries the listing's description block.
type About struct {
	Summary string `json:"summary"`
}

// ID returns the stable listing identifier, preferring business_id.
func (b Business) ID() string {
	if b.BusinessID != "" {
		return b.BusinessID
	}
	return b.PlaceID
}

// Zip returns whichever postal code field the API populated.
func (b Business) Zip() string {
	if b.Zipcode != "" {
		return b.Zipcode
	}
	return b.PostalCode
}

// searchResponse is the envelope around every endpoint's payload.
type searchResponse struct {
	Status string     `json:"status"`
	Data   []Business `json:"data"`
}

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("localdata: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHost overrides the RapidAPI host (and the X-RapidAPI-Host header).
func WithHost(host string) Option {
	return func(c *httpClient) {
		c.host = host
	}
}

// WithBaseURL overrides the full base URL, for tests against a local server.
// The host header keeps its configured value.
func WithBaseURL(base string) Option {
	return func(c *httpClient) {
		c.baseURL = base
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	host    string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Local Business Data client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey: apiKey,
		host:   defaultHost,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = "https://" + c.host
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]Business, error) {
	if req.Query == "" {
		return nil, eris.New("localdata: empty query")
	}
	region := req.Region
	if region == "" {
		region = "us"
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	q := url.Values{}
	q.Set("query", req.Query)
	q.Set("region", region)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("language", "en")
	q.Set("extract_emails_and_contacts", "false")
	if req.Lat != 0 || req.Lng != 0 {
		q.Set("lat", strconv.FormatFloat(req.Lat, 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(req.Lng, 'f', -1, 64))
	}

	var resp searchResponse
	if err := c.get(ctx, "/search", q, &resp); err != nil {
		return nil, eris.Wrap(err, "localdata: search")
	}
	return resp.Data, nil
}

func (c *httpClient) BusinessDetails(ctx context.Context, businessID string) (*Business, error) {
	if businessID == "" {
		return nil, eris.New("localdata: empty business id")
	}

	q := url.Values{}
	q.Set("business_id", businessID)
	q.Set("extract_emails_and_contacts", "true")
	q.Set("language", "en")
	q.Set("region", "us")

	var resp searchResponse
	if err := c.get(ctx, "/business-details", q, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("localdata: details %s", businessID))
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.host)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
