package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	httpRequestTimeout = 30 * time.Second
	maxResponseBytes   = 64 * 1024
)

// HTTPRequestTool performs outbound GET/POST requests with a bounded
// response size.
type HTTPRequestTool struct {
	client *http.Client
}

func NewHTTPRequestTool() *HTTPRequestTool {
	return &HTTPRequestTool{
		client: &http.Client{Timeout: httpRequestTimeout},
	}
}

func (t *HTTPRequestTool) GetName() string { return "http_request" }

func (t *HTTPRequestTool) GetDescription() string {
	return "Perform an HTTP GET or POST request and return the response body"
}

func (t *HTTPRequestTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []ToolParameter{
			{
				Name:        "url",
				Type:        "string",
				Description: "Request URL (http or https)",
				Required:    true,
			},
			{
				Name:        "method",
				Type:        "string",
				Description: "HTTP method",
				Required:    false,
				Default:     "GET",
				Enum:        []string{"GET", "POST"},
			},
			{
				Name:        "body",
				Type:        "string",
				Description: "Request body for POST",
				Required:    false,
			},
			{
				Name:        "content_type",
				Type:        "string",
				Description: "Content-Type header for POST",
				Required:    false,
				Default:     "application/json",
			},
		},
	}
}

func (t *HTTPRequestTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return errorResult(t.GetName(), "invalid arguments: url parameter is required"), nil
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return errorResult(t.GetName(), fmt.Sprintf("invalid arguments: unsupported URL scheme in %s", rawURL)), nil
	}

	method := http.MethodGet
	if m, ok := args["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != http.MethodGet && method != http.MethodPost {
		return errorResult(t.GetName(), fmt.Sprintf("invalid arguments: unsupported method %s", method)), nil
	}

	var body io.Reader
	if method == http.MethodPost {
		if raw, ok := args["body"].(string); ok {
			body = strings.NewReader(raw)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return errorResult(t.GetName(), fmt.Sprintf("failed to build request: %v", err)), nil
	}
	if method == http.MethodPost {
		contentType := "application/json"
		if ct, ok := args["content_type"].(string); ok && ct != "" {
			contentType = ct
		}
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return errorResult(t.GetName(), fmt.Sprintf("request failed: %v", err)), nil
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errorResult(t.GetName(), fmt.Sprintf("failed to read response: %v", err)), nil
	}

	result := successResult(t.GetName(), string(payload), map[string]interface{}{
		"status_code": resp.StatusCode,
		"body":        string(payload),
	}, time.Since(start))
	if resp.StatusCode >= 400 {
		result.Success = false
		result.Error = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	}
	return result, nil
}

var _ Tool = (*HTTPRequestTool)(nil)
