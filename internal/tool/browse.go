package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/loupe-ai/loupe/pkg/types"
)

const browseDescription = `Fetches a web page and returns its content as readable markdown.

Usage notes:
  - The URL must be a fully-formed valid URL starting with http:// or https://
  - This tool is read-only and does not modify any files
  - Results may be truncated if the content is very large (>5MB limit)
  - Non-HTML content (plain text, JSON) is returned as-is`

const (
	maxResponseSize  = 5 * 1024 * 1024 // 5MB
	defaultTimeout   = 30 * time.Second
	maxTimeout       = 120 * time.Second
	maxContentLength = 100_000 // runes kept in the tool response
)

// BrowseTool fetches web pages for the research agent.
type BrowseTool struct {
	client *http.Client
}

// BrowseInput represents the input for the browse tool.
type BrowseInput struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout,omitempty"`
}

// BrowseResult is the payload recorded in the conversation.
type BrowseResult struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// NewBrowseTool creates a new browse tool.
func NewBrowseTool() *BrowseTool {
	return &BrowseTool{
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

func (t *BrowseTool) ID() string          { return "browse" }
func (t *BrowseTool) Description() string { return browseDescription }

func (t *BrowseTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The URL to fetch content from"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in seconds (max 120)"
			}
		},
		"required": ["url"]
	}`)
}

func (t *BrowseTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*types.FullToolResponse, *types.UserToolResponse, error) {
	var params BrowseInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, nil, fmt.Errorf("invalid input: %w", err)
	}

	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return nil, nil, fmt.Errorf("URL must start with http:// or https://")
	}

	timeout := defaultTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
		if timeout > maxTimeout {
			timeout = maxTimeout
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", params.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}

	if resp.ContentLength > maxResponseSize {
		return nil, nil, fmt.Errorf("response too large (exceeds 5MB limit)")
	}

	limitedReader := io.LimitReader(resp.Body, maxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if len(body) > maxResponseSize {
		return nil, nil, fmt.Errorf("response too large (exceeds 5MB limit)")
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")

	if strings.Contains(contentType, "text/html") {
		content, err = convertHTMLToMarkdown(content)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to convert HTML to markdown: %w", err)
		}
	}

	result := BrowseResult{
		URL:         params.URL,
		ContentType: contentType,
	}
	result.Content, result.Truncated = truncateRunes(content, maxContentLength)

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, nil, err
	}

	icon := "globe"
	return &types.FullToolResponse{
			ToolName: t.ID(),
			Response: payload,
		}, &types.UserToolResponse{
			ToolName: t.ID(),
			Summary:  fmt.Sprintf("Browsed %s", params.URL),
			Icon:     &icon,
		}, nil
}

func (t *BrowseTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// truncateRunes cuts s at the given rune count.
func truncateRunes(s string, limit int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]), true
}

// extractTextFromHTML extracts plain text from HTML, removing scripts,
// styles, and other non-content elements.
func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript, iframe, object, embed").Remove()

	return strings.TrimSpace(doc.Text()), nil
}

// convertHTMLToMarkdown converts HTML content to Markdown format.
func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})

	converter.Remove("script", "style", "meta", "link")

	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}

	return markdown, nil
}
