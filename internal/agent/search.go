package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	tavilySearchURL = "https://api.tavily.com/search"
	maxSearchHits   = 2
)

// SearchResult is one hit from the web-search capability.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Searcher is the web-search capability the knowledge agent consults before
// answering.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// TavilyClient implements Searcher against the Tavily search API.
type TavilyClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewTavilyClient creates a Tavily search client. A nil httpClient gets a
// sensible default timeout.
func NewTavilyClient(httpClient *http.Client, apiKey string) *TavilyClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	return &TavilyClient{apiKey: strings.TrimSpace(apiKey), httpClient: httpClient}
}

// Enabled reports whether the client has credentials.
func (tc *TavilyClient) Enabled() bool {
	return tc != nil && tc.apiKey != ""
}

// Search runs one query and returns at most two results, matching the
// upstream default this bot has always used.
func (tc *TavilyClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	if !tc.Enabled() {
		return nil, errors.New("tavily api key missing")
	}

	body := map[string]any{
		"query":       query,
		"max_results": maxSearchHits,
	}

	var resp struct {
		Results []SearchResult `json:"results"`
	}
	if err := tc.do(ctx, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) > maxSearchHits {
		resp.Results = resp.Results[:maxSearchHits]
	}
	return resp.Results, nil
}

func (tc *TavilyClient) do(ctx context.Context, payload any, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilySearchURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tc.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return fmt.Errorf("tavily search: %s", strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
