// Package panelsource fetches panel payloads from a PanelApp-style registry
// API and normalizes them into the payload structs the importer consumes.
package panelsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/genepanel-curator/internal/domain"
)

// Config represents configuration for the panel registry client.
type Config struct {
	BaseURL   string        `json:"base_url"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit int           `json:"rate_limit"` // requests per second
	CacheSize int           `json:"cache_size"`
}

// Client fetches panels from the registry with rate limiting, a circuit
// breaker and an LRU cache keyed by (id, version). Only explicit-version
// fetches are cached; a versionless fetch always asks the registry what is
// current.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      *lru.Cache[string, *domain.PanelPayload]
}

// NewClient creates a panel registry client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://panelapp.genomicsengland.co.uk/api/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.CacheSize == 0 {
		config.CacheSize = 256
	}

	cache, err := lru.New[string, *domain.PanelPayload](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating payload cache: %w", err)
	}

	return &Client{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "panel-registry",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		cache: cache,
	}, nil
}

// FetchPanel retrieves one panel, optionally pinned to a version. Empty
// version means the registry's current release.
func (c *Client) FetchPanel(ctx context.Context, externalID, version string) (*domain.PanelPayload, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty panel id", domain.ErrMalformedPayload)
	}

	cacheKey := externalID + "@" + version
	if version != "" {
		if payload, ok := c.cache.Get(cacheKey); ok {
			return payload, nil
		}
	}

	endpoint := fmt.Sprintf("%s/panels/%s/", c.baseURL, url.PathEscape(externalID))
	if version != "" {
		endpoint += "?version=" + url.QueryEscape(version)
	}

	var wire panelResponse
	if err := c.getJSON(ctx, endpoint, &wire); err != nil {
		return nil, fmt.Errorf("fetching panel %s: %w", externalID, err)
	}

	payload, err := wire.normalize()
	if err != nil {
		return nil, err
	}
	if version != "" {
		c.cache.Add(cacheKey, payload)
	}
	return payload, nil
}

// FetchAllCurrentPanels pages through the registry's signed-off panel
// listing and fetches each panel's full payload. Panels that have not been
// signed off are not importable and are skipped at the listing stage.
func (c *Client) FetchAllCurrentPanels(ctx context.Context) ([]*domain.PanelPayload, error) {
	var payloads []*domain.PanelPayload

	next := c.baseURL + "/panels/signedoff/"
	for next != "" {
		var page signedOffPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("listing signed-off panels: %w", err)
		}

		for _, entry := range page.Results {
			payload, err := c.FetchPanel(ctx, strconv.FormatInt(entry.ID, 10), entry.Version)
			if err != nil {
				return nil, err
			}
			payloads = append(payloads, payload)
		}
		next = page.Next
	}
	return payloads, nil
}

// getJSON performs one rate-limited GET through the circuit breaker and
// decodes the body strictly.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
		}

		dec := json.NewDecoder(resp.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		return nil, nil
	})
	return err
}
