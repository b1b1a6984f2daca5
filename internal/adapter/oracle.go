package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/portfolio-engine/internal/circuitbreaker"
	"github.com/portfolio-engine/internal/retry"
	"github.com/portfolio-engine/internal/types"
	"github.com/shopspring/decimal"
)

// PriceOracle supplies authoritative unit values for assets. The engine never
// computes market prices itself; it consumes a value-per-unit from this
// collaborator or a manual caller-supplied value.
type PriceOracle interface {
	// GetValue returns the current value per unit for the asset
	GetValue(ctx context.Context, assetID types.AssetID) (decimal.Decimal, error)
}

// HTTPOracle fetches unit values from a JSON price API, protected by retry
// with exponential backoff and a circuit breaker.
type HTTPOracle struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retryCfg   *retry.Config
}

// HTTPOracleConfig holds configuration for creating an HTTPOracle
type HTTPOracleConfig struct {
	// BaseURL is the price API endpoint. Required.
	BaseURL string

	// APIKey authenticates requests. Optional.
	APIKey string

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// NewHTTPOracle creates a price oracle backed by an HTTP price API
func NewHTTPOracle(cfg *HTTPOracleConfig) (*HTTPOracle, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("oracle base URL cannot be empty")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPOracle{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("price-oracle")),
		retryCfg: &retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// priceResponse is the wire format returned by the price API
type priceResponse struct {
	AssetID string `json:"assetId"`
	Price   string `json:"price"`
}

// GetValue fetches the asset's unit value from the price API
func (o *HTTPOracle) GetValue(ctx context.Context, assetID types.AssetID) (decimal.Decimal, error) {
	var price decimal.Decimal

	err := o.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, o.retryCfg, func(ctx context.Context, attempt int) error {
			fetched, err := o.fetch(ctx, assetID)
			if err != nil {
				return err
			}
			price = fetched
			return nil
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	return price, nil
}

// fetch performs one request against the price API
func (o *HTTPOracle) fetch(ctx context.Context, assetID types.AssetID) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v1/prices/%s", o.baseURL, url.PathEscape(string(assetID)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build oracle request: %w", err)
	}
	if o.apiKey != "" {
		req.Header.Set("X-API-Key", o.apiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("oracle returned status %d for asset %s", resp.StatusCode, assetID)
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle returned invalid price %q: %w", body.Price, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("oracle returned negative price for asset %s", assetID)
	}

	return price, nil
}
