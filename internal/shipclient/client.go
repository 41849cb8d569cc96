// Package shipclient talks to a Ship's own HTTP service: readiness probing,
// command execution, and file transfer. It knows nothing about sessions,
// warm pools, or persistence; it is a thin, synchronous client over one
// Ship's network address.
package shipclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"shipyard/internal/shiperr"
)

// Client is a short-lived handle bound to one Ship's endpoint.
type Client struct {
	Endpoint   string // "host:port", no scheme
	HTTPClient *http.Client
}

func New(endpoint string) *Client {
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{},
	}
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("http://%s%s", c.Endpoint, path)
}

// ExecRequest mirrors what a Ship's /{operation_type} endpoint accepts.
type ExecRequest struct {
	Type    string
	Payload map[string]any
}

// ExecResult is the outcome of forwarding a command to a Ship. Only one of
// Data/Error is populated depending on Success, matching the upstream
// forward_request_to_ship contract.
type ExecResult struct {
	Success bool
	Data    json.RawMessage
	Error   string
}

// WaitForReady polls a Ship's /health endpoint at a fixed interval until it
// responds 200 or the timeout elapses. The interval is unconditional, not
// backed off, because a Ship either finishes booting in a few seconds or
// something is actually wrong and backing off only delays noticing that.
func (c *Client) WaitForReady(ctx context.Context, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 5 * time.Second}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/health"), nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}

		if time.Now().After(deadline) {
			return shiperr.New(shiperr.KindShipUnready, "ship at "+c.Endpoint+" did not become ready within "+timeout.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Exec forwards a command to the Ship and returns its outcome. Ship-level
// failures (non-200, connection errors, timeouts) are folded into
// ExecResult.Error rather than returned as a Go error, so a caller recording
// execution history always has a result to persist.
func (c *Client) Exec(ctx context.Context, sessionID string, req ExecRequest, timeout time.Duration) (ExecResult, error) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return ExecResult{}, shiperr.Wrap(shiperr.KindInvalidRequest, "encode exec payload", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(execCtx, http.MethodPost, c.url("/"+req.Type), bytes.NewReader(body))
	if err != nil {
		return ExecResult{}, shiperr.Wrap(shiperr.KindInvalidRequest, "build exec request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-SESSION-ID", sessionID)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return ExecResult{Success: false, Error: "connection error: " + err.Error()}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ExecResult{Success: false, Error: "read response: " + err.Error()}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return ExecResult{Success: false, Error: fmt.Sprintf("ship returned %d: %s", resp.StatusCode, string(respBody))}, nil
	}

	return ExecResult{Success: true, Data: json.RawMessage(respBody)}, nil
}

// Upload sends file content to a Ship's /upload endpoint as multipart form
// data, matching the upstream upload_file_to_ship contract.
func (c *Client) Upload(ctx context.Context, sessionID string, filePath string, content []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "upload")
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindInvalidRequest, "build upload form", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", shiperr.Wrap(shiperr.KindInvalidRequest, "write upload form", err)
	}
	if err := w.WriteField("file_path", filePath); err != nil {
		return "", shiperr.Wrap(shiperr.KindInvalidRequest, "write upload field", err)
	}
	if err := w.Close(); err != nil {
		return "", shiperr.Wrap(shiperr.KindInvalidRequest, "close upload form", err)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPost, c.url("/upload"), &buf)
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindInvalidRequest, "build upload request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-SESSION-ID", sessionID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindBackendUnreachable, "upload to ship "+c.Endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindBackendUnreachable, "read upload response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", shiperr.New(shiperr.KindBackendUnreachable, fmt.Sprintf("ship returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return filePath, nil
	}
	return parsed.FilePath, nil
}

// Download fetches file content from a Ship's /download endpoint.
func (c *Client) Download(ctx context.Context, sessionID string, filePath string) ([]byte, error) {
	downloadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	reqURL := c.url("/download") + "?" + url.Values{"file_path": {filePath}}.Encode()
	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, shiperr.Wrap(shiperr.KindInvalidRequest, "build download request", err)
	}
	req.Header.Set("X-SESSION-ID", sessionID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, shiperr.Wrap(shiperr.KindBackendUnreachable, "download from ship "+c.Endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shiperr.Wrap(shiperr.KindBackendUnreachable, "read download response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, shiperr.New(shiperr.KindBackendUnreachable, fmt.Sprintf("ship returned %d: %s", resp.StatusCode, string(body)))
	}
	return body, nil
}

// Logs fetches a Ship container's own application logs via its HTTP API,
// used as a fallback when the driver-level container log tail is
// insufficient (e.g. Kubernetes log rotation).
func (c *Client) Logs(ctx context.Context, tail int) (string, error) {
	reqURL := c.url(fmt.Sprintf("/logs?tail=%d", tail))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindInvalidRequest, "build logs request", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindBackendUnreachable, "fetch logs from ship "+c.Endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindBackendUnreachable, "read logs response", err)
	}
	return string(body), nil
}
