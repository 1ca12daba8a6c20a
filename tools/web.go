package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const maxPageChars = 50000

// internalHosts blocks SSRF-ish targets in fetched URLs.
var internalHosts = []string{"169.254.169.254", "localhost", "127.", "10.", "192.168.", "172."}

type searchResult struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Content     string `json:"content"`
	PublishDate string `json:"publish_date"`
}

// SearchCache remembers the last search results per session so fetch_page
// can resolve numeric result ids.
type SearchCache struct {
	mu      sync.Mutex
	results map[string][]searchResult
}

// NewSearchCache creates an empty cache.
func NewSearchCache() *SearchCache {
	return &SearchCache{results: make(map[string][]searchResult)}
}

func (c *SearchCache) put(sessionID string, results []searchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[sessionID] = results
}

func (c *SearchCache) lookup(sessionID string, idx int) (searchResult, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached := c.results[sessionID]
	if idx < 0 || idx >= len(cached) {
		return searchResult{}, len(cached), false
	}
	return cached[idx], len(cached), true
}

// SearchWebTool queries the web through the proxy's search endpoint.
type SearchWebTool struct {
	proxyURL string
	client   *http.Client
	cache    *SearchCache
}

// NewSearchWebTool builds the search tool. An empty proxyURL makes every
// call fail with a configuration error.
func NewSearchWebTool(proxyURL string, timeout time.Duration, cache *SearchCache) *SearchWebTool {
	return &SearchWebTool{
		proxyURL: strings.TrimRight(proxyURL, "/"),
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
	}
}

func (s *SearchWebTool) Name() string        { return "search_web" }
func (s *SearchWebTool) Description() string { return "Search the web. Returns numbered results." }
func (s *SearchWebTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"query": map[string]any{"type": "string", "description": "Search query."},
	}, "query")
}

func (s *SearchWebTool) Execute(ctx context.Context, args map[string]any, tc *Context) Result {
	query, _ := StringArg(args, "query")
	if query == "" {
		return Fail("query required")
	}
	if s.proxyURL == "" {
		return Fail("No proxy configured")
	}

	endpoint := s.proxyURL + "/zai/search?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Fail(err.Error())
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Fail(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Fail(fmt.Sprintf("Search failed: %d", resp.StatusCode))
	}

	var decoded struct {
		SearchResult []searchResult `json:"search_result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Fail(err.Error())
	}
	if len(decoded.SearchResult) == 0 {
		return Ok("(no results)")
	}

	results := decoded.SearchResult
	if len(results) > 10 {
		results = results[:10]
	}
	s.cache.put(tc.SessionID, results)

	var out []string
	for i, r := range results {
		date := ""
		if r.PublishDate != "" {
			date = " (" + r.PublishDate + ")"
		}
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		content := r.Content
		if len(content) > 400 {
			content = content[:400]
		}
		out = append(out, fmt.Sprintf("[%d] %s%s\n%s\n%s", i+1, title, date, r.Link, content))
	}
	return Ok(strings.Join(out, "\n\n"))
}

// FetchPageTool fetches a URL, by address or by a cached search result id.
type FetchPageTool struct {
	readerURL string
	client    *http.Client
	cache     *SearchCache
	policy    *bluemonday.Policy
}

// NewFetchPageTool builds the fetch tool. readerURL is the text-extraction
// reader prefix tried before a direct fetch.
func NewFetchPageTool(readerURL string, timeout time.Duration, cache *SearchCache) *FetchPageTool {
	if readerURL == "" {
		readerURL = "https://r.jina.ai/"
	}
	return &FetchPageTool{
		readerURL: readerURL,
		client:    &http.Client{Timeout: timeout},
		cache:     cache,
		policy:    bluemonday.StrictPolicy(),
	}
}

func (f *FetchPageTool) Name() string { return "fetch_page" }
func (f *FetchPageTool) Description() string {
	return "Fetch a web page as text, by url or by result_id from the last search."
}
func (f *FetchPageTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"url":       map[string]any{"type": "string", "description": "Page URL."},
		"result_id": map[string]any{"type": "integer", "description": "1-based id from the last search_web results."},
	})
}

func (f *FetchPageTool) Execute(ctx context.Context, args map[string]any, tc *Context) Result {
	target, _ := StringArg(args, "url")

	if target == "" {
		id, ok := resultID(args)
		if !ok {
			return Fail("url or result_id required")
		}
		cached, have, found := f.cache.lookup(tc.SessionID, id-1)
		if !found {
			return Fail(fmt.Sprintf("Result %d not found (have %d cached results)", id, have))
		}
		target = cached.Link
	}
	if target == "" {
		return Fail("url or result_id required")
	}

	for _, host := range internalHosts {
		if strings.Contains(target, host) {
			return Fail("🚫 Internal URL blocked")
		}
	}

	// Reader service first, direct fetch as fallback.
	if content, ok := f.get(ctx, f.readerURL+target); ok {
		return Ok(content)
	}
	content, ok := f.get(ctx, target)
	if !ok {
		return Fail("Fetch failed: " + target)
	}
	return Ok(content)
}

func (f *FetchPageTool) get(ctx context.Context, target string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*maxPageChars))
	if err != nil {
		return "", false
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		content = f.policy.Sanitize(content)
	}
	if len(content) > maxPageChars {
		content = content[:maxPageChars]
	}
	return content, true
}

// resultID accepts the aliases models actually emit for a search result id.
func resultID(args map[string]any) (int, bool) {
	for _, key := range []string{"result_id", "cursor", "id"} {
		if n, ok := IntArg(args, key); ok {
			return n, true
		}
		if s, ok := StringArg(args, key); ok {
			var n int
			if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
