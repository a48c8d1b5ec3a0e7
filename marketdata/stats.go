package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultStatsBaseURL = "https://api.coingecko.com/api/v3"
	statsRequestTimeout = 15 * time.Second
	apiKeyHeader        = "x-cg-demo-api-key"
)

// AssetStats is the 24h market summary of one asset from the statistics source.
type AssetStats struct {
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	High24h   decimal.Decimal `json:"high_24h"`
	Low24h    decimal.Decimal `json:"low_24h"`
	Volume24h decimal.Decimal `json:"volume_24h"`
}

// StatsSource fetches 24h statistics for a batch of cross-reference ids in one call.
type StatsSource interface {
	FetchStats(ctx context.Context, ids []string) (map[string]AssetStats, error)
}

// coinMarket is one element of the /coins/markets response. Nullable numeric fields
// decode as zero.
type coinMarket struct {
	ID                       string          `json:"id"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
	High24h                  decimal.Decimal `json:"high_24h"`
	Low24h                   decimal.Decimal `json:"low_24h"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
}

type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string
	// RequestsPerMinute bounds outgoing requests; the free tier allows about 30.
	RequestsPerMinute int
}

// CoinGeckoClient is a StatsSource backed by the CoinGecko /coins/markets endpoint.
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewCoinGeckoClient(cfg CoinGeckoConfig, logger *zap.Logger) *CoinGeckoClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultStatsBaseURL
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &CoinGeckoClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: statsRequestTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		logger:     logger.With(zap.String("component", "coingecko")),
	}
}

// FetchStats issues a single batched request for all ids. Any non-200 response,
// rate limiting included, is returned as an error so the caller can keep its cache.
func (c *CoinGeckoClient) FetchStats(ctx context.Context, ids []string) (map[string]AssetStats, error) {
	if len(ids) == 0 {
		return map[string]AssetStats{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("stats rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", strings.Join(ids, ","))
	endpoint := c.baseURL + "/coins/markets?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build stats request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stats request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("stats request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []coinMarket
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}

	out := make(map[string]AssetStats, len(rows))
	for _, row := range rows {
		out[row.ID] = AssetStats{
			Price:     row.CurrentPrice,
			Change24h: row.PriceChangePercentage24h,
			High24h:   row.High24h,
			Low24h:    row.Low24h,
			Volume24h: row.TotalVolume,
		}
	}
	c.logger.Debug("fetched 24h stats", zap.Int("requested", len(ids)), zap.Int("received", len(out)))
	return out, nil
}
