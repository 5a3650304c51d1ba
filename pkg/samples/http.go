package samples

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"
)

// HTTPSource fetches a segment manifest from an HTTP endpoint, e.g. the
// listing endpoint of the recording archive.
//
// Header values may use template variables from TemplateVars, for example
// "Bearer {{.Token}}".
type HTTPSource struct {
	// URL is the manifest endpoint (required).
	URL string

	// Method defaults to GET.
	Method string

	// Headers are added to the request after template rendering.
	Headers map[string]string

	// PositivePath and NegativePath are gjson paths to the segment arrays.
	PositivePath string
	NegativePath string

	// HTTPClient is optional; if nil a client with a 30s timeout is used.
	HTTPClient *http.Client

	// TemplateVars are available to header templates.
	TemplateVars map[string]string
}

func (h *HTTPSource) Name() string { return "http" }

// Load implements Source.
func (h *HTTPSource) Load(ctx context.Context) (*Set, error) {
	if h.URL == "" {
		return nil, errors.New("http source: URL is required")
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	data := make(map[string]any, len(h.TemplateVars))
	for k, v := range h.TemplateVars {
		data[k] = v
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, data)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	set, err := parseManifest(body, h.PositivePath, h.NegativePath)
	if err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	return set, nil
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
