package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/gatherer/report"
)

// captureRequest mirrors the gatherer API request model.
type captureRequest struct {
	URL      string         `json:"url"`
	Mode     string         `json:"mode"`
	Timeout  int            `json:"timeout,omitempty"`
	Stealth  bool           `json:"stealth,omitempty"`
	BlockAds bool           `json:"block_ads,omitempty"`
	Record   *recordOptions `json:"record,omitempty"`
}

type recordOptions struct {
	Test string `json:"test"`
	Step string `json:"step,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// captureResponse mirrors the gatherer API response model.
type captureResponse struct {
	Success          bool     `json:"success"`
	Location         string   `json:"location"`
	LocationStatus   string   `json:"location_status"`
	Screenshot       string   `json:"screenshot"`
	ScreenshotStatus string   `json:"screenshot_status"`
	Width            int      `json:"width"`
	Height           int      `json:"height"`
	Hidden           []string `json:"hidden"`
	ReportEntry      *struct {
		Seq        int    `json:"seq"`
		Duplicate  bool   `json:"duplicate"`
		Screenshot string `json:"screenshot"`
	} `json:"report_entry"`
	Error *apiError `json:"error"`
}

func main() {
	apiURL := os.Getenv("GATHERER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("GATHERER_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "GATHERER_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"gatherer",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	registerTools(s, &client{
		http:   &http.Client{Timeout: 150 * time.Second},
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
	})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func registerTools(s *server.MCPServer, c *client) {
	captureOpts := func(description string) []mcp.ToolOption {
		return []mcp.ToolOption{
			mcp.WithDescription(description),
			mcp.WithString("url",
				mcp.Required(),
				mcp.Description("The URL of the page to open"),
			),
			mcp.WithNumber("timeout",
				mcp.Description("Timeout in seconds for navigation and capture (default: 30, max: 120)"),
			),
			mcp.WithBoolean("stealth",
				mcp.Description("Mask browser automation signals before navigating"),
			),
			mcp.WithBoolean("block_ads",
				mcp.Description("Block requests to known ad and tracking domains"),
			),
			mcp.WithString("test",
				mcp.Description("Record the capture as a step of this test report"),
			),
			mcp.WithString("step",
				mcp.Description("Name of the recorded step"),
			),
		}
	}

	s.AddTool(mcp.NewTool("get_location", captureOpts(
		"Open a page in a headless browser and return its final location after redirects.",
	)...), c.handleCapture("location"))

	s.AddTool(mcp.NewTool("take_screenshot", captureOpts(
		"Open a page in a headless browser and return a PNG screenshot of the visible viewport.",
	)...), c.handleCapture("viewport"))

	s.AddTool(mcp.NewTool("take_full_page_screenshot", captureOpts(
		"Open a page in a headless browser and return a PNG of the whole page, stitched from viewport captures with the site header and footer hidden.",
	)...), c.handleCapture("full_page"))

	s.AddTool(mcp.NewTool("get_report",
		mcp.WithDescription("List the recorded steps of a test report: location, screenshot file and status of each step."),
		mcp.WithString("test",
			mcp.Required(),
			mcp.Description("The test name the steps were recorded under"),
		),
	), c.handleReport())
}

// client calls the gatherer HTTP API.
type client struct {
	http   *http.Client
	apiURL string
	apiKey string
}

// do sends a request to the API and returns the response body.
func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	// Error envelopes are JSON; anything else is reported with its status.
	if resp.StatusCode >= 300 && !json.Valid(data) {
		return nil, fmt.Errorf("API returned %s: %s", resp.Status, snippet(data))
	}
	return data, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func (c *client) handleCapture(mode string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := captureRequest{
			URL:      target,
			Mode:     mode,
			Timeout:  request.GetInt("timeout", 0),
			Stealth:  request.GetBool("stealth", false),
			BlockAds: request.GetBool("block_ads", false),
		}
		if test := request.GetString("test", ""); test != "" {
			reqBody.Record = &recordOptions{Test: test, Step: request.GetString("step", "")}
		}

		body, err := c.do(ctx, http.MethodPost, "/api/v1/capture", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp captureResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			if resp.Error == nil {
				return mcp.NewToolResultError("capture failed"), nil
			}
			return mcp.NewToolResultError(describe(&resp)), nil
		}

		summary := describe(&resp)
		if mode == "location" {
			return mcp.NewToolResultText(summary), nil
		}
		return mcp.NewToolResultImage(summary, resp.Screenshot, "image/png"), nil
	}
}

func (c *client) handleReport() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		test, err := request.RequireString("test")
		if err != nil {
			return mcp.NewToolResultError("test is required"), nil
		}

		// Reports are stored under the sanitised name.
		name, err := report.SanitizeName(test)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		body, err := c.do(ctx, http.MethodGet, "/api/v1/reports/"+url.PathEscape(name), nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp struct {
			Entries []struct {
				Seq              int    `json:"seq"`
				Step             string `json:"step"`
				Time             string `json:"time"`
				Location         string `json:"location"`
				Screenshot       string `json:"screenshot"`
				ScreenshotStatus string `json:"screenshot_status"`
				Duplicate        bool   `json:"duplicate"`
				Error            string `json:"error"`
			} `json:"entries"`
			Error *apiError `json:"error"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d steps recorded for %s\n", len(resp.Entries), test)
		for _, e := range resp.Entries {
			fmt.Fprintf(&sb, "\n%03d %s\n  location: %s\n  screenshot: %s (%s)", e.Seq, e.Step, e.Location, e.Screenshot, e.ScreenshotStatus)
			if e.Duplicate {
				sb.WriteString(" unchanged")
			}
			if e.Error != "" {
				fmt.Fprintf(&sb, "\n  error: %s", e.Error)
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func describe(resp *captureResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "location: %s (%s)", resp.Location, resp.LocationStatus)
	if resp.ScreenshotStatus != "" {
		fmt.Fprintf(&sb, "\nscreenshot: %s", resp.ScreenshotStatus)
		if resp.Width > 0 {
			fmt.Fprintf(&sb, " %dx%d", resp.Width, resp.Height)
		}
	}
	if len(resp.Hidden) > 0 {
		fmt.Fprintf(&sb, "\nhidden: %s", strings.Join(resp.Hidden, ", "))
	}
	if resp.ReportEntry != nil {
		fmt.Fprintf(&sb, "\nrecorded as step %d", resp.ReportEntry.Seq)
		if resp.ReportEntry.Duplicate {
			fmt.Fprintf(&sb, " (same as %s)", resp.ReportEntry.Screenshot)
		}
	}
	if resp.Error != nil {
		fmt.Fprintf(&sb, "\nerror [%s]: %s", resp.Error.Code, resp.Error.Message)
	}
	return sb.String()
}
