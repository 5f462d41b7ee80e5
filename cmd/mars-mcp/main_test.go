package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/marsdata/models"
)

func newFakeAPI(t *testing.T, scrape models.ScrapeResponse, stored bool) *apiClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/scrape", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k-test", r.Header.Get("X-API-Key"))
		_ = json.NewEncoder(w).Encode(scrape)
	})
	mux.HandleFunc("GET /api/v1/mars", func(w http.ResponseWriter, r *http.Request) {
		if !stored {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(models.RecordResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "no scrape has been stored yet"},
			})
			return
		}
		body := "## Latest Mars News\n\n### Dust Storm"
		if r.URL.Query().Get("format") == "json" {
			body = `{"success":true}`
		}
		if r.URL.Query().Get("citations") == "true" {
			body += "\n\n---\n[1]: https://example.test"
		}
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &apiClient{baseURL: srv.URL, apiKey: "k-test", http: &http.Client{Timeout: 5 * time.Second}}
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestScrapeMars(t *testing.T) {
	c := newFakeAPI(t, models.ScrapeResponse{Success: true, RunID: "run-1", ScrapedAt: "2026-03-14T09:00:00Z", Changed: true}, true)

	res, err := handleScrapeMars(c)(context.Background(), callTool("scrape_mars", map[string]any{"citations": true}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	out := text(t, res)
	assert.Contains(t, out, "Run: run-1")
	assert.Contains(t, out, "Changed: true")
	assert.Contains(t, out, "### Dust Storm")
	assert.Contains(t, out, "[1]: https://example.test")
}

func TestScrapeMars_Failure(t *testing.T) {
	c := newFakeAPI(t, models.ScrapeResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeRunInProgress, Message: "a scrape run is already in progress"},
	}, true)

	res, err := handleScrapeMars(c)(context.Background(), callTool("scrape_mars", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "[RUN_IN_PROGRESS]")
}

func TestGetMars(t *testing.T) {
	c := newFakeAPI(t, models.ScrapeResponse{}, true)

	res, err := handleGetMars(c)(context.Background(), callTool("get_mars", map[string]any{"format": "json"}))
	require.NoError(t, err)
	assert.Equal(t, `{"success":true}`, text(t, res))
}

func TestGetMars_NothingStored(t *testing.T) {
	c := newFakeAPI(t, models.ScrapeResponse{}, false)

	res, err := handleGetMars(c)(context.Background(), callTool("get_mars", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "[NOT_FOUND]")
}
