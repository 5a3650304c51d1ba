package samples

import (
	"encoding/json"
	"fmt"
)

// New creates a source based on kind and a generic configuration map.
//
// Supported kinds:
//   - "file": requires "path"
//   - "http": requires "url"; optional "method", "headers" (JSON object),
//     "templateVars" (JSON object)
//
// Both kinds accept "positivePath" and "negativePath".
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "file":
		return newFile(config)
	case "http":
		return newHTTP(config)
	default:
		return nil, fmt.Errorf("unknown sample source kind: %s (must be file or http)", kind)
	}
}

func newFile(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("file source requires 'path' config")
	}

	return &FileSource{
		Path:         path,
		PositivePath: config["positivePath"],
		NegativePath: config["negativePath"],
	}, nil
}

func newHTTP(config map[string]string) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	return &HTTPSource{
		URL:          url,
		Method:       config["method"],
		Headers:      headers,
		PositivePath: config["positivePath"],
		NegativePath: config["negativePath"],
		TemplateVars: templateVars,
	}, nil
}
