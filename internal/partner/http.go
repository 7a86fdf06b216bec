package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig describes a paginated JSON endpoint returning normalized records
type HTTPConfig struct {
	Network       string
	URL           string
	AuthHeader    string // e.g. "Authorization" or "X-API-KEY"
	AuthValue     string
	PageSize      int
	MaxPages      int
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

type page struct {
	Records []Record `json:"records"`
	HasMore *bool    `json:"has_more"`
}

// last reports whether no further page should be requested. A short page or
// an explicit has_more=false ends paging; a full page without the field does not.
func (p *page) last(pageSize int) bool {
	if len(p.Records) < pageSize {
		return true
	}
	return p.HasMore != nil && !*p.HasMore
}

// HTTPSource pages through an endpoint with ?since=&page=&limit= until a
// short page, has_more=false or MaxPages
type HTTPSource struct {
	config  HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPSource creates an HTTPSource
func NewHTTPSource(config HTTPConfig, logger *slog.Logger) *HTTPSource {
	if config.PageSize <= 0 {
		config.PageSize = 500
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 100
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}

	return &HTTPSource{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		logger:  logger.With(slog.String("network", config.Network)),
	}
}

func (s *HTTPSource) Network() string {
	return s.config.Network
}

// Fetch returns every record since the given time. On a page failure the
// records from earlier pages are returned along with the error.
func (s *HTTPSource) Fetch(ctx context.Context, since time.Time) ([]Record, error) {
	var records []Record

	for pageNum := 1; pageNum <= s.config.MaxPages; pageNum++ {
		p, err := s.fetchPage(ctx, since, pageNum)
		if err != nil {
			s.logger.Error("Failed to fetch partner page",
				slog.Int("page", pageNum),
				slog.Int("fetched", len(records)),
				slog.Any("error", err),
			)
			return records, fmt.Errorf("%s page %d: %w", s.config.Network, pageNum, err)
		}

		for _, r := range p.Records {
			if r.Network == "" {
				r.Network = s.config.Network
			}
			records = append(records, r)
		}

		if p.last(s.config.PageSize) {
			break
		}
	}

	s.logger.Info("Fetched partner records",
		slog.Int("count", len(records)),
	)
	return records, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, since time.Time, pageNum int) (*page, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(s.config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(pageNum))
	q.Set("limit", strconv.Itoa(s.config.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.config.AuthHeader != "" {
		req.Header.Set(s.config.AuthHeader, s.config.AuthValue)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &p, nil
}
