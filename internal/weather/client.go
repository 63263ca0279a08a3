package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"conuco-bot/internal/cache"
	"conuco-bot/internal/metrics"
)

const defaultCacheTTL = 10 * time.Minute

// ErrUnavailable indicates the weather provider could not be reached or
// returned a payload we could not use. Callers degrade to a fixed
// "weather unavailable" message instead of failing the request.
var ErrUnavailable = errors.New("weather unavailable")

// Client provides typed access to the Open-Meteo forecast API.
type Client struct {
	logger   *slog.Logger
	baseURL  string
	timeout  time.Duration
	http     *http.Client
	metrics  *metrics.Metrics
	cache    *cache.Redis
	cacheTTL time.Duration
}

// Config holds weather client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Snapshot summarises the forecast for the current day.
type Snapshot struct {
	MaxTemp24h      float64 `json:"max_temp_24h"`
	Rain24h         float64 `json:"rain_24h"`
	MeanHumidity    float64 `json:"mean_humidity"`
	RainProbability float64 `json:"rain_probability"`
}

// History carries the current reading plus a short daily series.
type History struct {
	CurrentTemp float64   `json:"current_temp"`
	WindSpeed   float64   `json:"wind_speed"`
	Dates       []string  `json:"dates"`
	TempMax     []float64 `json:"temp_max"`
	TempMin     []float64 `json:"temp_min"`
	RainSum     []float64 `json:"rain_sum"`
}

// New creates a new Open-Meteo client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics, redis *cache.Redis) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.open-meteo.com/v1/forecast"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Client{
		logger:   logger.With("component", "weather"),
		baseURL:  base,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		metrics:  metricRegistry,
		cache:    redis,
		cacheTTL: ttl,
	}
}

// Current returns the forecast summary for today at the given coordinates.
// Snapshots are cached per coordinate pair when Redis is configured.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Snapshot, error) {
	cacheKey := fmt.Sprintf("weather:current:%.4f:%.4f", lat, lon)
	if c.cache != nil {
		var cached Snapshot
		ok, err := c.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warn("read weather cache failed", "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	params := url.Values{}
	params.Set("latitude", formatCoord(lat))
	params.Set("longitude", formatCoord(lon))
	params.Set("daily", "temperature_2m_max,precipitation_sum,relative_humidity_2m_mean,precipitation_probability_max")
	params.Set("timezone", "auto")
	params.Set("forecast_days", "1")

	var payload struct {
		Daily struct {
			TempMax  []float64 `json:"temperature_2m_max"`
			RainSum  []float64 `json:"precipitation_sum"`
			Humidity []float64 `json:"relative_humidity_2m_mean"`
			RainProb []float64 `json:"precipitation_probability_max"`
		} `json:"daily"`
	}
	if err := c.get(ctx, "current", params, &payload); err != nil {
		return nil, err
	}

	if len(payload.Daily.TempMax) == 0 {
		c.logger.Warn("weather response missing daily summary")
		return nil, ErrUnavailable
	}

	snapshot := &Snapshot{
		MaxTemp24h:      payload.Daily.TempMax[0],
		Rain24h:         first(payload.Daily.RainSum),
		MeanHumidity:    first(payload.Daily.Humidity),
		RainProbability: first(payload.Daily.RainProb),
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, cacheKey, snapshot, c.cacheTTL); err != nil {
			c.logger.Warn("set weather cache failed", "error", err)
		}
	}
	return snapshot, nil
}

// History returns the current reading plus daily series covering the past
// daysBack days and today.
func (c *Client) History(ctx context.Context, lat, lon float64, daysBack int) (*History, error) {
	if daysBack < 1 {
		daysBack = 1
	}

	params := url.Values{}
	params.Set("latitude", formatCoord(lat))
	params.Set("longitude", formatCoord(lon))
	params.Set("current", "temperature_2m,wind_speed_10m")
	params.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	params.Set("timezone", "auto")
	params.Set("past_days", strconv.Itoa(daysBack))
	params.Set("forecast_days", "1")

	var payload struct {
		Current struct {
			Temp float64 `json:"temperature_2m"`
			Wind float64 `json:"wind_speed_10m"`
		} `json:"current"`
		Daily struct {
			Dates   []string  `json:"time"`
			TempMax []float64 `json:"temperature_2m_max"`
			TempMin []float64 `json:"temperature_2m_min"`
			RainSum []float64 `json:"precipitation_sum"`
		} `json:"daily"`
	}
	if err := c.get(ctx, "history", params, &payload); err != nil {
		return nil, err
	}

	if len(payload.Daily.Dates) == 0 {
		c.logger.Warn("weather history response missing daily series")
		return nil, ErrUnavailable
	}

	return &History{
		CurrentTemp: payload.Current.Temp,
		WindSpeed:   payload.Current.Wind,
		Dates:       payload.Daily.Dates,
		TempMax:     payload.Daily.TempMax,
		TempMin:     payload.Daily.TempMin,
		RainSum:     payload.Daily.RainSum,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, dest any) error {
	started := time.Now()
	status := "error"
	defer func() {
		if c.metrics != nil {
			c.metrics.WeatherRequests.WithLabelValues(endpoint, status).Inc()
			c.metrics.WeatherLatency.WithLabelValues(endpoint, status).Observe(time.Since(started).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("weather request failed", "endpoint", endpoint, "error", err)
		return ErrUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Warn("read weather response failed", "endpoint", endpoint, "error", err)
		return ErrUnavailable
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("weather provider returned error", "endpoint", endpoint, "status", resp.StatusCode)
		return ErrUnavailable
	}

	if err := json.Unmarshal(body, dest); err != nil {
		c.logger.Warn("decode weather response failed", "endpoint", endpoint, "error", err)
		return ErrUnavailable
	}

	status = "ok"
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func first(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return vals[0]
}
