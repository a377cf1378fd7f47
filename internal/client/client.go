// Package client calls remote coding services over HTTP. It implements the
// search, rerank and validation collaborators
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/retry"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

type (
	// Config describes how to reach the coding services
	Config struct {
		BaseURL   string
		UserAgent string
		Timeout   time.Duration
		Retry     retry.Config
		RateLimit float64
	}

	// HTTPClient is a rate limited, retrying client for the coding services
	HTTPClient struct {
		httpClient *http.Client
		limiter    *rate.Limiter
		baseURL    string
		userAgent  string
		retry      retry.Config
	}

	searchRequest struct {
		Text  string `json:"text"`
		Limit int    `json:"limit"`
	}

	rerankRequest struct {
		Text       string             `json:"text"`
		Candidates []collab.Candidate `json:"candidates"`
	}

	validateRequest struct {
		Text string `json:"text"`
		Code string `json:"code"`
	}
)

const DefaultUserAgent = "medical-agent/1.0"

var (
	ErrHTTPError       = errors.New("service returned HTTP error")
	ErrInvalidResponse = collab.ErrInvalidResponse
	ErrMissingBaseURL  = errors.New("service base URL is required")
)

var (
	_ collab.Searcher  = (*HTTPClient)(nil)
	_ collab.Reranker  = (*HTTPClient)(nil)
	_ collab.Validator = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client for the services rooted at cfg.BaseURL.
// A RateLimit of zero disables client-side limiting
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(int(cfg.RateLimit), 1)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  ua,
		retry:      cfg.Retry,
	}, nil
}

// Search asks the search service for ranked candidate codes
func (c *HTTPClient) Search(
	ctx context.Context, text string, limit int,
) ([]collab.Candidate, error) {
	body, err := c.post(ctx, "/search", searchRequest{
		Text:  text,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	list := gjson.GetBytes(body, "candidates")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: missing candidates", ErrInvalidResponse)
	}
	res := []collab.Candidate{}
	for _, item := range list.Array() {
		cand, ok := candidateFrom(item)
		if !ok {
			return nil, fmt.Errorf("%w: candidate without code",
				ErrInvalidResponse)
		}
		res = append(res, cand)
	}
	return res, nil
}

// Rerank asks the rerank service to choose among candidates
func (c *HTTPClient) Rerank(
	ctx context.Context, text string, candidates []collab.Candidate,
) (collab.Candidate, error) {
	if len(candidates) == 0 {
		return collab.Candidate{}, collab.ErrNoCandidates
	}
	body, err := c.post(ctx, "/rerank", rerankRequest{
		Text:       text,
		Candidates: candidates,
	})
	if err != nil {
		return collab.Candidate{}, err
	}

	best, ok := candidateFrom(gjson.GetBytes(body, "best"))
	if !ok {
		return collab.Candidate{}, fmt.Errorf("%w: missing best candidate",
			ErrInvalidResponse)
	}
	return best, nil
}

// Validate asks the validation service which requirements of a code the
// note leaves undocumented
func (c *HTTPClient) Validate(
	ctx context.Context, text, identifier string,
) (collab.Validation, error) {
	body, err := c.post(ctx, "/validate", validateRequest{
		Text: text,
		Code: identifier,
	})
	if err != nil {
		return collab.Validation{}, err
	}

	status := gjson.GetBytes(body, "status").String()
	res := collab.Validation{
		Identifier:    identifier,
		Status:        api.PredictionStatus(status),
		MissingFields: []string{},
	}
	if !res.Status.IsValid() {
		return collab.Validation{}, fmt.Errorf("%w: status %q",
			ErrInvalidResponse, res.Status)
	}
	for _, f := range gjson.GetBytes(body, "missing_fields").Array() {
		if name := f.String(); name != "" {
			res.MissingFields = append(res.MissingFields, name)
		}
	}
	return res, nil
}

func (c *HTTPClient) post(
	ctx context.Context, path string, payload any,
) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var body []byte
	err = retry.Do(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		res, err := c.send(ctx, path, data)
		body = res
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", collab.ErrUnavailable, path, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s returned malformed JSON",
			ErrInvalidResponse, path)
	}
	return body, nil
}

func (c *HTTPClient) send(
	ctx context.Context, path string, data []byte,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	dur := time.Since(start)
	if err != nil {
		slog.Warn("Service request failed",
			slog.String("path", path),
			log.Duration(dur),
			log.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Service returned error",
			slog.String("path", path),
			slog.Int("status_code", resp.StatusCode),
			log.Duration(dur))
		return nil, fmt.Errorf("%w: %w", ErrHTTPError,
			&retry.StatusError{Code: resp.StatusCode})
	}
	return body, nil
}

func candidateFrom(v gjson.Result) (collab.Candidate, bool) {
	code := v.Get("code").String()
	if code == "" {
		code = v.Get("identifier").String()
	}
	if code == "" {
		return collab.Candidate{}, false
	}
	return collab.Candidate{
		Identifier:  code,
		Description: v.Get("description").String(),
		Score:       v.Get("score").Float(),
	}, true
}
