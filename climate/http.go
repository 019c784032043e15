package climate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/resilience"
	"github.com/adixon02/AutoHVAC-sub002/safeio"
)

// HTTPConfig configures a remote climate lookup.
type HTTPConfig struct {
	// BaseURL is the service root; records are fetched from
	// {BaseURL}/v1/climate/{zip}.
	BaseURL string `yaml:"base_url"`
	// APIKey is sent as a bearer token when set.
	APIKey         string        `yaml:"-"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	Backoff        time.Duration `yaml:"backoff"`
	// AllowPrivate skips the SSRF check on BaseURL (local deployments, tests).
	AllowPrivate bool `yaml:"allow_private"`

	Client  *http.Client        `yaml:"-"`
	Breaker *resilience.Breaker `yaml:"-"`
	Logger  *slog.Logger        `yaml:"-"`
}

func (c *HTTPConfig) defaults() {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	if c.Breaker == nil {
		c.Breaker = resilience.NewBreaker()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTPService looks records up from a remote climate service.
type HTTPService struct {
	cfg  HTTPConfig
	base string
}

// NewHTTPService validates the endpoint and returns a service.
func NewHTTPService(cfg HTTPConfig) (*HTTPService, error) {
	cfg.defaults()
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("climate: remote base url is empty")
	}
	if !cfg.AllowPrivate {
		if err := safeio.ValidateURL(base); err != nil {
			return nil, fmt.Errorf("climate: remote base url: %w", err)
		}
	}
	return &HTTPService{cfg: cfg, base: base}, nil
}

// Lookup fetches zip with per-attempt timeouts and retries. A 404 is an
// ErrUnknownZIP; exhausted retries are an ExternalServiceError.
func (s *HTTPService) Lookup(ctx context.Context, zip string) (Record, error) {
	zip, err := NormalizeZIP(zip)
	if err != nil {
		return Record{}, err
	}
	rec, err := resilience.Do(ctx, func(ctx context.Context) (Record, error) {
		return s.fetch(ctx, zip)
	},
		resilience.WithRetry[Record](s.cfg.MaxRetries, s.cfg.Backoff, s.cfg.Logger),
		resilience.WithBreaker[Record](s.cfg.Breaker, "climate"),
		resilience.WithTimeout[Record](s.cfg.AttemptTimeout),
	)
	if err == nil {
		return rec, nil
	}
	var unknown *ErrUnknownZIP
	if errors.As(err, &unknown) {
		return Record{}, unknown
	}
	attempts := 1
	var re *resilience.RetryError
	if errors.As(err, &re) {
		attempts = re.Attempts
		err = re.Err
	}
	return Record{}, &blueprint.ExternalServiceError{Service: "climate", Attempts: attempts, Cause: err}
}

func (s *HTTPService) fetch(ctx context.Context, zip string) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/v1/climate/"+url.PathEscape(zip), nil)
	if err != nil {
		return Record{}, resilience.Permanent(fmt.Errorf("climate: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("climate: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := safeio.LimitedReadAll(resp.Body, safeio.MaxResponseBody)
	if err != nil {
		return Record{}, fmt.Errorf("climate: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Record{}, resilience.Permanent(&ErrUnknownZIP{ZIP: zip})
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Record{}, fmt.Errorf("climate: status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Record{}, resilience.Permanent(fmt.Errorf("climate: status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, resilience.Permanent(fmt.Errorf("climate: decode response: %w", err))
	}
	if rec.ZIP == "" {
		rec.ZIP = zip
	}
	rec.Source = SourceRemote
	if err := rec.Validate(); err != nil {
		return Record{}, resilience.Permanent(err)
	}
	return rec, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
