package rules

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/opensource-finance/repayplan/internal/domain"
	"github.com/valyala/fasthttp"
)

// Source fetches a rules document. A failed fetch must abort the assessment.
type Source interface {
	Fetch(ctx context.Context) (*domain.RulesDocument, error)
}

// FileSource reads a rules document from disk.
type FileSource struct {
	Path string
}

// Fetch implements Source.
func (s FileSource) Fetch(ctx context.Context) (*domain.RulesDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", s.Path, err)
	}
	return doc, nil
}

// HTTPSource fetches a rules document over HTTP, bypassing caches.
type HTTPSource struct {
	URL     string
	Client  *fasthttp.Client
	Timeout time.Duration

	now func() time.Time
}

// NewHTTPSource creates an HTTPSource with its own client.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		URL:     url,
		Timeout: timeout,
		Client: &fasthttp.Client{
			Name:         "repayplan",
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
	}
}

// Fetch implements Source. The request carries a "v" cache-busting parameter
// and Cache-Control: no-store. Any non-200 response is an error.
func (s *HTTPSource) Fetch(ctx context.Context) (*domain.RulesDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := s.Client
	if client == nil {
		client = &fasthttp.Client{}
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.URL)
	req.URI().QueryArgs().Set("v", strconv.FormatInt(now().UnixMilli(), 10))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(s.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("failed to fetch rules: status %d", code)
	}

	doc, err := Parse(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("rules from %s: %w", s.URL, err)
	}
	return doc, nil
}

func (s *HTTPSource) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 10 * time.Second
	}
	return s.Timeout
}
