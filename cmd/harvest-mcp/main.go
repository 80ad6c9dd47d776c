package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/harvest/models"
)

var version = "0.1.0"

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	client := newAPIClient(apiURL, os.Getenv("HARVEST_API_KEY"))

	s := server.NewMCPServer(
		"harvest",
		version,
		server.WithToolCapabilities(false),
	)
	registerTools(s, client)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func registerTools(s *server.MCPServer, client *apiClient) {
	s.AddTool(mcp.NewTool("scrape_page_data",
		mcp.WithDescription("Load a page in a real browser, optionally after a login, and return its data: the first table, a repository list, a list matching the hint, or the page body."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to scrape"),
		),
		mcp.WithString("hint",
			mcp.Description("Short description of the data wanted, used to pick among lists"),
		),
		mcp.WithBoolean("login_required",
			mcp.Description("Run the login flow before loading the page"),
		),
		mcp.WithBoolean("manual_login",
			mcp.Description("Open a visible browser and wait for an operator to log in; confirm with confirm_login"),
		),
		mcp.WithString("login_url",
			mcp.Description("Login page when it differs from url"),
		),
		mcp.WithString("wait_strategy",
			mcp.Description("Navigation wait condition (default: network-idle)"),
			mcp.Enum("dom-ready", "network-idle", "full-load"),
		),
		mcp.WithString("request_id",
			mcp.Description("Run ID to use; it is the ID confirm_login expects. Generated when omitted."),
		),
	), handleScrape(client, models.ModePageData))

	s.AddTool(mcp.NewTool("export_table",
		mcp.WithDescription("Click the page's export control and return the downloaded CSV, TSV, Excel or JSON file as records."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page with the export button"),
		),
		mcp.WithString("hint",
			mcp.Description("Label of the export button, tried before the built-in labels"),
		),
		mcp.WithBoolean("login_required",
			mcp.Description("Run the login flow before loading the page"),
		),
		mcp.WithBoolean("manual_login",
			mcp.Description("Open a visible browser and wait for an operator to log in"),
		),
		mcp.WithString("login_url",
			mcp.Description("Login page when it differs from url"),
		),
		mcp.WithString("request_id",
			mcp.Description("Run ID to use; it is the ID confirm_login expects"),
		),
	), handleScrape(client, models.ModeExportButton))

	s.AddTool(mcp.NewTool("list_repositories",
		mcp.WithDescription("Return the repositories of a code-hosting owner as records with name, description, language, stars and update time."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Owner name (e.g. 'octocat') or the URL of a repository listing page"),
		),
	), handleScrape(client, models.ModeStructuredRecords))

	s.AddTool(mcp.NewTool("fetch_rendered_html",
		mcp.WithDescription("Return the fully rendered HTML of a page after JavaScript has run."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page"),
		),
		mcp.WithString("output_format",
			mcp.Description("'html' (default) or 'markdown'"),
			mcp.Enum("html", "markdown"),
		),
	), handleScrape(client, models.ModeRenderedHTML))

	s.AddTool(mcp.NewTool("confirm_login",
		mcp.WithDescription("Tell a scrape that is waiting on a manual login that the operator has finished logging in."),
		mcp.WithString("request_id",
			mcp.Required(),
			mcp.Description("ID of the waiting run, as listed by pending_logins"),
		),
	), handleConfirmLogin(client))

	s.AddTool(mcp.NewTool("pending_logins",
		mcp.WithDescription("List the IDs of runs currently waiting on a manual login."),
	), handlePendingLogins(client))

	s.AddTool(mcp.NewTool("scrape_history",
		mcp.WithDescription("Show the most recent scrape runs, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries (default: all)"),
		),
	), handleHistory(client))
}

// scrapeRequestFrom builds the API request for a tool call in the given mode.
func scrapeRequestFrom(request mcp.CallToolRequest, mode models.ExtractionMode) (*models.ScrapeRequest, error) {
	target, err := request.RequireString("url")
	if err != nil {
		return nil, fmt.Errorf("url is required")
	}
	return &models.ScrapeRequest{
		URL:           target,
		Mode:          mode,
		Hint:          request.GetString("hint", ""),
		LoginRequired: request.GetBool("login_required", false) || request.GetBool("manual_login", false),
		ManualLogin:   request.GetBool("manual_login", false),
		LoginURL:      request.GetString("login_url", ""),
		WaitStrategy:  models.WaitStrategy(request.GetString("wait_strategy", "")),
		OutputFormat:  request.GetString("output_format", ""),
	}, nil
}

func handleScrape(client *apiClient, mode models.ExtractionMode) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := scrapeRequestFrom(request, mode)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id := request.GetString("request_id", "")
		if id == "" && req.ManualLogin {
			id = uuid.NewString()
		}

		resp, err := client.scrape(ctx, req, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scrape failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatResult(resp)), nil
	}
}

func handleConfirmLogin(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("request_id")
		if err != nil {
			return mcp.NewToolResultError("request_id is required"), nil
		}
		body, err := client.post(ctx, "/api/v1/logins/"+url.PathEscape(id)+"/confirm", nil, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp models.ConfirmResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Confirmed {
			return mcp.NewToolResultError("no login is waiting under " + id), nil
		}
		return mcp.NewToolResultText("login confirmed for " + id), nil
	}
}

func handlePendingLogins(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := client.get(ctx, "/api/v1/logins")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp struct {
			Pending []string `json:"pending"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if len(resp.Pending) == 0 {
			return mcp.NewToolResultText("no logins pending"), nil
		}
		out, _ := json.Marshal(resp.Pending)
		return mcp.NewToolResultText(string(out)), nil
	}
}

func handleHistory(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := "/api/v1/history"
		if limit := request.GetInt("limit", 0); limit > 0 {
			path += "?limit=" + strconv.Itoa(limit)
		}
		body, err := client.get(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp models.HistoryResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		return mcp.NewToolResultText(formatHistory(resp.Items)), nil
	}
}

func formatHistory(items []models.HistoryItem) string {
	if len(items) == 0 {
		return "no runs recorded"
	}
	var out string
	for _, it := range items {
		out += fmt.Sprintf("%s  %-20s %s\n  %s\n", it.Timestamp, it.Mode, it.URL, it.Summary)
	}
	return out
}
