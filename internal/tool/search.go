package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/loupe-ai/loupe/pkg/types"
)

const searchDescription = `Searches the web and returns a list of results.

Usage notes:
  - Provide a concise query; quotes narrow the match
  - Each result has a title, URL, and snippet
  - Use the browse tool to read the full content of a result`

const (
	defaultSearchEndpoint = "https://html.duckduckgo.com/html/"
	defaultMaxResults     = 10
	maxAllowedResults     = 25
)

// SearchTool performs web searches for the research agent. It scrapes
// the endpoint's HTML result page, so it needs no API key.
type SearchTool struct {
	client   *http.Client
	endpoint string
}

// SearchInput represents the input for the search tool.
type SearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// SearchResult is one hit in the result list.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResponse is the payload recorded in the conversation.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// NewSearchTool creates a search tool against the default endpoint.
func NewSearchTool() *SearchTool {
	return NewSearchToolWithEndpoint(defaultSearchEndpoint)
}

// NewSearchToolWithEndpoint creates a search tool against a custom
// endpoint serving DuckDuckGo-style HTML results.
func NewSearchToolWithEndpoint(endpoint string) *SearchTool {
	return &SearchTool{
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		endpoint: endpoint,
	}
}

func (t *SearchTool) ID() string          { return "search" }
func (t *SearchTool) Description() string { return searchDescription }

func (t *SearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query"
			},
			"max_results": {
				"type": "integer",
				"description": "Maximum number of results to return (default 10, max 25)"
			}
		},
		"required": ["query"]
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*types.FullToolResponse, *types.UserToolResponse, error) {
	var params SearchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, nil, fmt.Errorf("invalid input: %w", err)
	}

	if strings.TrimSpace(params.Query) == "" {
		return nil, nil, fmt.Errorf("query must not be empty")
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxAllowedResults {
		maxResults = maxAllowedResults
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	form := url.Values{"q": {params.Query}}
	req, err := http.NewRequestWithContext(reqCtx, "POST", t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("search request failed with status code: %d", resp.StatusCode)
	}

	results, err := parseSearchResults(resp.Body, maxResults)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	payload, err := json.Marshal(SearchResponse{
		Query:   params.Query,
		Results: results,
	})
	if err != nil {
		return nil, nil, err
	}

	icon := "search"
	return &types.FullToolResponse{
			ToolName: t.ID(),
			Response: payload,
		}, &types.UserToolResponse{
			ToolName: t.ID(),
			Summary:  fmt.Sprintf("Searched for %q (%d results)", params.Query, len(results)),
			Icon:     &icon,
		}, nil
}

func (t *SearchTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// parseSearchResults extracts results from a DuckDuckGo HTML page.
func parseSearchResults(r io.Reader, maxResults int) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, maxResults)
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}

		results = append(results, SearchResult{
			Title:   strings.TrimSpace(link.Text()),
			URL:     cleanResultURL(href),
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
		})
		return len(results) < maxResults
	})

	return results, nil
}

// cleanResultURL unwraps DuckDuckGo's redirect links (/l/?uddg=...).
func cleanResultURL(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
