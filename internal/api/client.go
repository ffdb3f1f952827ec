package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"campusbook/internal/metrics"
)

// Config holds the client settings.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	RateLimit        float64 // requests per second, 0 disables limiting
	Burst            int
	ConflictKeywords []string
}

// Client talks to the reservation backend over REST.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration

	mu       sync.RWMutex
	keywords []string
}

// envelope is the backend's standard response wrapper. Login answers with
// {message, user}; signup answers with the bare user object.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	User    json.RawMessage `json:"user"`
}

type response struct {
	env envelope
	raw []byte
}

// payload returns the most specific body part present.
func (r *response) payload() []byte {
	switch {
	case len(r.env.Data) > 0 && string(r.env.Data) != "null":
		return r.env.Data
	case len(r.env.User) > 0 && string(r.env.User) != "null":
		return r.env.User
	case r.env.Success == nil && r.env.Message == "":
		return r.raw
	default:
		return nil
	}
}

// NewClient constructs a client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	keywords := cfg.ConflictKeywords
	if len(keywords) == 0 {
		keywords = DefaultConflictKeywords
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "api").Logger(),
		keywords:   keywords,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// UseRedisCache configures optional Redis caching for the room list.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// SetConflictKeywords replaces the conflict keyword list (config hot reload).
func (c *Client) SetConflictKeywords(keywords []string) {
	if len(keywords) == 0 {
		keywords = DefaultConflictKeywords
	}
	c.mu.Lock()
	c.keywords = append([]string(nil), keywords...)
	c.mu.Unlock()
}

func (c *Client) conflictKeywords() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keywords
}

// HealthCheck checks that the backend answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.doGet(ctx, "/api/rooms")
	return err
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Client) dropCache(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, keys...).Err()
}

func (c *Client) doGet(ctx context.Context, path string) (*response, error) {
	return c.doJSON(ctx, http.MethodGet, path, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveBackendRequest(req.Method, "error", time.Since(start))
		c.logger.Warn().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("backend request failed")
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	metrics.ObserveBackendRequest(req.Method, strconv.Itoa(resp.StatusCode/100)+"xx", time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	out := &response{raw: raw}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		// Non-envelope objects simply leave the envelope fields empty.
		_ = json.Unmarshal(trimmed, &out.env)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Dur("took", time.Since(start)).
		Msg("backend request")

	failed := out.env.Success != nil && !*out.env.Success
	if resp.StatusCode >= 300 || failed {
		msg := out.env.Message
		if msg == "" && len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '[' {
			msg = strings.TrimSpace(string(trimmed))
		}
		return nil, &APIError{
			Status:   resp.StatusCode,
			Message:  msg,
			Conflict: isSlotWrite(req) && (resp.StatusCode == http.StatusConflict || IsConflictMessage(msg, c.conflictKeywords())),
		}
	}
	return out, nil
}

// slotPaths are the endpoints where a 409 or a conflict message means the slot is taken.
var slotPaths = []string{"/api/reservations", "/api/waitlist"}

func isSlotWrite(req *http.Request) bool {
	if req.Method != http.MethodPost {
		return false
	}
	for _, p := range slotPaths {
		if strings.HasSuffix(req.URL.Path, p) {
			return true
		}
	}
	return false
}

// decode unmarshals the response payload into out. An empty payload leaves out untouched.
func decode(resp *response, out any) error {
	data := resp.payload()
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
