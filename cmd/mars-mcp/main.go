package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/marsdata/models"
)

func main() {
	apiURL := os.Getenv("MARS_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("MARS_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "MARS_API_KEY is required")
		os.Exit(1)
	}

	s := newServer(&apiClient{
		baseURL: apiURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Minute},
	})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"marsdata",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape_mars",
		mcp.WithDescription("Run the Mars scrape now: fetch the latest NASA news headline, the JPL featured image, the Mars facts table and the hemisphere images, store them, and return the new record as Markdown."),
		mcp.WithBoolean("citations",
			mcp.Description("Return links as numbered references instead of inline links"),
		),
	)
	s.AddTool(scrapeTool, handleScrapeMars(c))

	getTool := mcp.NewTool("get_mars",
		mcp.WithDescription("Return the most recently stored Mars record without scraping."),
		mcp.WithString("format",
			mcp.Description("Output format: 'markdown' (default) or 'json'"),
			mcp.Enum("markdown", "json"),
		),
		mcp.WithBoolean("citations",
			mcp.Description("Markdown only: return links as numbered references"),
		),
	)
	s.AddTool(getTool, handleGetMars(c))

	return s
}

// apiClient calls the marsd HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// record fetches the stored record in format. JSON errors from the API are
// turned into tool errors.
func (c *apiClient) record(ctx context.Context, format string, citations bool) (string, error) {
	q := url.Values{"format": {format}}
	if citations {
		q.Set("citations", "true")
	}
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/mars?"+q.Encode())
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		var resp models.RecordResponse
		if json.Unmarshal(body, &resp) == nil && resp.Error != nil {
			return "", fmt.Errorf("[%s] %s", resp.Error.Code, resp.Error.Message)
		}
		return "", fmt.Errorf("API returned status %d", status)
	}
	return string(body), nil
}

func handleScrapeMars(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, body, err := c.do(ctx, http.MethodPost, "/api/v1/scrape")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var scrapeResp models.ScrapeResponse
		if err := json.Unmarshal(body, &scrapeResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !scrapeResp.Success {
			errMsg := "scrape failed"
			if scrapeResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", scrapeResp.Error.Code, scrapeResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		md, err := c.record(ctx, "markdown", request.GetBool("citations", false))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		header := fmt.Sprintf("Run: %s\nScraped at: %s\nChanged: %t\n\n", scrapeResp.RunID, scrapeResp.ScrapedAt, scrapeResp.Changed)
		return mcp.NewToolResultText(header + md), nil
	}
}

func handleGetMars(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		format := request.GetString("format", "markdown")
		out, err := c.record(ctx, format, request.GetBool("citations", false))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
