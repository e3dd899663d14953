package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/pressline/pressline/internal/config"
)

// WordPressPublisher creates posts through the WordPress REST API.
// Draft bodies are sanitized before they leave the process; the
// generator's output is treated as untrusted HTML.
type WordPressPublisher struct {
	baseURL  string
	username string
	password string
	status   string
	client   *http.Client
	limiter  *rate.Limiter
	policy   *bluemonday.Policy
}

func NewWordPressPublisher(cfg config.PublisherConfig) *WordPressPublisher {
	return &WordPressPublisher{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.AppPassword,
		status:   cfg.PostStatus,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), 1),
		policy:   postBodyPolicy(),
	}
}

func postBodyPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "h2", "h3", "ul", "ol", "li", "strong", "em", "blockquote", "code", "pre")
	p.AllowAttrs("href").OnElements("a")
	p.RequireNoFollowOnLinks(true)
	return p
}

type wpPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type wpPostResponse struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

type wpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *WordPressPublisher) Publish(ctx context.Context, draft *Draft) (*PostRef, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	reqBody := wpPostRequest{
		Title:   draft.Title,
		Content: p.policy.Sanitize(draft.Body),
		Status:  p.status,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/wp/v2/posts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling CMS API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading publish response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var werr wpError
		if json.Unmarshal(body, &werr) == nil && werr.Message != "" {
			return nil, fmt.Errorf("CMS returned %d: %s", resp.StatusCode, werr.Message)
		}
		return nil, fmt.Errorf("CMS returned %d", resp.StatusCode)
	}

	var created wpPostResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("decoding publish response: %w", err)
	}
	if created.ID == 0 {
		return nil, fmt.Errorf("CMS response missing post id")
	}

	return &PostRef{
		ID:  strconv.Itoa(created.ID),
		URL: created.Link,
	}, nil
}
