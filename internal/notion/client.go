// Package notion is a small client for the Notion REST API covering the
// database query, page retrieval and page update endpoints.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	APIVersion     = "2022-06-28"
	maxPageSize    = 100
)

// Client talks to the Notion API with an integration token.
type Client struct {
	BaseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client sharing httpClient. Requests are limited to
// the documented average of three per second.
func NewClient(httpClient *http.Client, token string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		token:      token,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(3), 3),
	}
}

// APIError is the error object Notion returns with non-2xx responses.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API error %d (%s): %s", e.Status, e.Code, e.Message)
}

// File is a page cover or icon.
type File struct {
	Type     string    `json:"type"`
	External *FileLink `json:"external,omitempty"`
	File     *FileLink `json:"file,omitempty"`
}

type FileLink struct {
	URL string `json:"url"`
}

// ExternalFile builds a cover pointing at an external image.
func ExternalFile(u string) *File {
	return &File{Type: "external", External: &FileLink{URL: u}}
}

// Link returns the file URL whatever its hosting type.
func (f *File) Link() string {
	switch {
	case f == nil:
		return ""
	case f.External != nil:
		return f.External.URL
	case f.File != nil:
		return f.File.URL
	}
	return ""
}

// Page is a database row.
type Page struct {
	ID             string           `json:"id"`
	CreatedTime    time.Time        `json:"created_time"`
	LastEditedTime time.Time        `json:"last_edited_time"`
	Archived       bool             `json:"archived"`
	URL            string           `json:"url"`
	Cover          *File            `json:"cover"`
	Properties     map[string]Value `json:"properties"`
}

// Filter is a database query filter object.
type Filter map[string]any

func And(filters ...Filter) Filter { return Filter{"and": filters} }
func Or(filters ...Filter) Filter  { return Filter{"or": filters} }

// URLIsNotEmpty matches rows whose url property is set.
func URLIsNotEmpty(property string) Filter {
	return Filter{"property": property, "url": map[string]any{"is_not_empty": true}}
}

// URLContains matches rows whose url property contains s.
func URLContains(property, s string) Filter {
	return Filter{"property": property, "url": map[string]any{"contains": s}}
}

// Query is the body of a database query.
type Query struct {
	Filter      Filter `json:"filter,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

// QueryResponse is one page of query results.
type QueryResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// PageUpdate is the body of a page update. Only the listed properties are
// changed.
type PageUpdate struct {
	Properties map[string]Value `json:"properties,omitempty"`
	Cover      *File            `json:"cover,omitempty"`
}

// QueryDatabase fetches one page of rows.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, q Query) (*QueryResponse, error) {
	if q.PageSize <= 0 || q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	var resp QueryResponse
	if err := c.do(ctx, http.MethodPost, "/databases/"+url.PathEscape(databaseID)+"/query", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to query database: %w", err)
	}
	return &resp, nil
}

// Pages iterates every row matching filter, following next_cursor until
// the result set is exhausted. Iteration stops at the first error.
func (c *Client) Pages(ctx context.Context, databaseID string, filter Filter) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		cursor := ""
		for {
			resp, err := c.QueryDatabase(ctx, databaseID, Query{Filter: filter, StartCursor: cursor})
			if err != nil {
				yield(Page{}, err)
				return
			}
			for _, p := range resp.Results {
				if !yield(p, nil) {
					return
				}
			}
			if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
				return
			}
			cursor = *resp.NextCursor
		}
	}
}

// GetPage retrieves one page with its current property values.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var p Page
	if err := c.do(ctx, http.MethodGet, "/pages/"+url.PathEscape(pageID), nil, &p); err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", pageID, err)
	}
	return &p, nil
}

// UpdatePage applies a partial update to a page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, u PageUpdate) (*Page, error) {
	var p Page
	if err := c.do(ctx, http.MethodPatch, "/pages/"+url.PathEscape(pageID), u, &p); err != nil {
		return nil, fmt.Errorf("failed to update page %s: %w", pageID, err)
	}
	return &p, nil
}

// do sends one request, retrying once when Notion answers 429.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.BaseURL, "/")+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", APIVersion)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			slog.Warn("Rate limited by Notion, retrying", "path", path, "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{Status: resp.StatusCode}
			if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
				apiErr.Message = strings.TrimSpace(string(data))
			}
			apiErr.Status = resp.StatusCode
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}
}

func retryAfter(h string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
