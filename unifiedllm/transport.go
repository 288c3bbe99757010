package unifiedllm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 32 << 20

// postJSON sends body to endpoint and returns the raw response payload. Transport
// failures become NetworkError, non-2xx answers go through ErrorFromStatusCode.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers http.Header, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &SDKError{Message: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		// *url.Error embeds the request URL, which may carry a key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = redactQuery(uerr.URL)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &RequestTimeoutError{SDKError: SDKError{Message: fmt.Sprintf("%s request timed out", provider), Cause: err}}
		}
		return nil, &NetworkError{SDKError: SDKError{Message: fmt.Sprintf("%s request failed", provider), Cause: err}}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: fmt.Sprintf("read %s response", provider), Cause: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, code, raw := parseErrorBody(payload)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, ErrorFromStatusCode(resp.StatusCode, message, provider, code, raw)
	}
	return payload, nil
}

// parseErrorBody extracts a message from the common {"error":{...}} shapes.
// Both Messages-style ({"error":{"type","message"}}) and Gemini-style
// ({"error":{"code","message","status"}}) bodies are handled.
func parseErrorBody(payload []byte) (message, code string, raw map[string]any) {
	if err := json.Unmarshal(payload, &raw); err != nil {
		return string(bytes.TrimSpace(payload)), "", nil
	}
	errObj, ok := raw["error"].(map[string]any)
	if !ok {
		if s, ok := raw["error"].(string); ok {
			return s, "", raw
		}
		return "", "", raw
	}
	message, _ = errObj["message"].(string)
	if t, ok := errObj["type"].(string); ok {
		code = t
	} else if s, ok := errObj["status"].(string); ok {
		code = s
	}
	return message, code, raw
}

func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

func malformed(provider string, err error) error {
	return &ResponseFormatError{SDKError: SDKError{Message: fmt.Sprintf("malformed %s response", provider), Cause: err}}
}
