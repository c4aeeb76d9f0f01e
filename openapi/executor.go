package openapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/questor-ai/questor/pkg/llmutils"
)

// executor issues one compiled operation's HTTP call at model request time.
// Every failure (transport, HTTP status, body parse) is handled here and
// returned as text content; nothing raises past this boundary.
type executor struct {
	client    *http.Client
	baseURL   string
	method    string
	path      string
	params    []Parameter
	security  []SecurityRequirement
	schemes   map[string]SecurityScheme
	authValue string
}

func (e *executor) Execute(ctx context.Context, args map[string]any) (llms.Outcome, error) {
	consumed := map[string]bool{}

	target := e.baseURL + substitutePath(e.path, args, consumed)

	query := url.Values{}
	header := http.Header{}

	authToken, _ := args[AuthTokenProperty].(string)
	consumed[AuthTokenProperty] = true

	if pay, ok := args[PaymentTokenProperty].(string); ok && pay != "" {
		header.Set(PaymentHeader, pay)
		consumed[PaymentTokenProperty] = true
	}

	for _, p := range e.params {
		v, ok := args[p.Name]
		if !ok || consumed[p.Name] {
			continue
		}
		switch p.In {
		case "query":
			query.Set(p.Name, stringify(v))
			consumed[p.Name] = true
		case "header":
			header.Set(p.Name, stringify(v))
			consumed[p.Name] = true
		}
	}

	e.applySecurity(header, values.StringsCoalesce(e.authValue, authToken))

	var bodyReader io.Reader
	if e.method == http.MethodPost || e.method == http.MethodPut || e.method == http.MethodPatch {
		body := map[string]any{}
		for name, v := range args {
			if consumed[name] {
				continue
			}
			body[name] = v
		}
		if len(body) > 0 {
			js, err := json.Marshal(body)
			if err != nil {
				return llms.TextOutcome(fmt.Sprintf("Failed to encode request body: %s", err.Error())), nil
			}
			bodyReader = bytes.NewReader(js)
			header.Set("Content-Type", "application/json")
		}
	}

	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, e.method, target, bodyReader)
	if err != nil {
		return llms.TextOutcome(fmt.Sprintf("Invalid request for %s %s: %s", e.method, target, err.Error())), nil
	}
	req.Header = header

	resp, err := e.client.Do(req)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_request_failed",
			"method", e.method,
			"url", target,
			"err", err.Error(),
		)
		return llms.TextOutcome(fmt.Sprintf("Request to %s failed: %s", target, err.Error())), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return llms.TextOutcome(fmt.Sprintf("Failed to read response from %s: %s", target, err.Error())), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llms.TextOutcome(fmt.Sprintf("Error %d: %s", resp.StatusCode, errorMessage(raw, resp.Status))), nil
	}

	if llmutils.IsJSON(raw) {
		return llms.TextOutcome(llmutils.PrettyJSON(raw)), nil
	}
	return llms.TextOutcome(string(raw)), nil
}

// applySecurity resolves the declared security schemes into request headers.
func (e *executor) applySecurity(header http.Header, value string) {
	if value == "" {
		return
	}
	for _, req := range e.security {
		for name := range req {
			scheme, ok := e.schemes[name]
			if !ok {
				continue
			}
			switch scheme.Type {
			case "http":
				switch scheme.Scheme {
				case "basic":
					header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(value)))
				default: // bearer
					header.Set("Authorization", "Bearer "+value)
				}
			case "apiKey":
				if scheme.In == "header" && scheme.Name != "" {
					header.Set(scheme.Name, value)
				}
			case "oauth2":
				header.Set("Authorization", "Bearer "+value)
			}
		}
	}
}

// substitutePath replaces {name} segments with the matching argument.
func substitutePath(path string, args map[string]any, consumed map[string]bool) string {
	var b strings.Builder
	rest := path
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			break
		}
		name := rest[open+1 : open+closing]
		b.WriteString(rest[:open])
		if v, ok := args[name]; ok {
			b.WriteString(url.PathEscape(stringify(v)))
			consumed[name] = true
		} else {
			b.WriteString(rest[open : open+closing+1])
		}
		rest = rest[open+closing+1:]
	}
	return b.String()
}

// errorMessage digs a human message out of a JSON error body, falling back
// to the HTTP status line.
func errorMessage(body []byte, status string) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"message", "error", "detail"} {
			if v, ok := parsed[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return status
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render integers without a point
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}
