package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shipyard/pkg/api"
)

// BayClient handles API calls to the Bay control plane.
type BayClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewBayClient(baseURL, token string) *BayClient {
	return &BayClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *BayClient) do(method, path, sessionID string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-SESSION-ID", sessionID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func (c *BayClient) AcquireShip(sessionID string, req api.CreateShipRequest) (*api.ShipResponse, error) {
	var out api.ShipResponse
	if err := c.do(http.MethodPost, "/ship", sessionID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BayClient) GetShip(shipID string) (*api.ShipResponse, error) {
	var out api.ShipResponse
	if err := c.do(http.MethodGet, "/ship/"+shipID, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BayClient) StopShip(shipID string) error {
	return c.do(http.MethodDelete, "/ship/"+shipID, "", nil, nil)
}

func (c *BayClient) DeleteShip(shipID string) error {
	return c.do(http.MethodDelete, "/ship/"+shipID+"/permanent", "", nil, nil)
}

func (c *BayClient) StartShip(shipID string) (*api.ShipResponse, error) {
	var out api.ShipResponse
	if err := c.do(http.MethodPost, "/ship/"+shipID+"/start", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BayClient) ExtendTTL(shipID string, ttlSeconds int) (*api.ShipResponse, error) {
	var out api.ShipResponse
	if err := c.do(http.MethodPost, "/ship/"+shipID+"/extend-ttl", "", api.ExtendTTLRequest{TTLSeconds: ttlSeconds}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BayClient) Exec(sessionID, shipID string, req api.ExecRequest) (*api.ExecResponse, error) {
	var out api.ExecResponse
	if err := c.do(http.MethodPost, "/ship/"+shipID+"/exec", sessionID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BayClient) Logs(shipID string, tail int) (string, error) {
	var out struct {
		Logs string `json:"logs"`
	}
	if err := c.do(http.MethodGet, fmt.Sprintf("/ship/logs/%s?tail=%d", shipID, tail), "", nil, &out); err != nil {
		return "", err
	}
	return out.Logs, nil
}

func (c *BayClient) GetSession(sessionID string) (*api.SessionResponse, error) {
	var out api.SessionResponse
	if err := c.do(http.MethodGet, "/sessions/"+sessionID, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BayClient) ListSessions() ([]api.SessionResponse, error) {
	var out []api.SessionResponse
	if err := c.do(http.MethodGet, "/sessions", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BayClient) History(sessionID string) (*api.HistoryListResponse, error) {
	var out api.HistoryListResponse
	if err := c.do(http.MethodGet, "/sessions/"+sessionID+"/history", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
