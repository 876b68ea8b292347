package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
)

// Client is a JobSource backed by the server's agent API, for agents running
// next to the physical printer on another machine.
type Client struct {
	baseURL    string
	deviceID   string
	deviceKey  string
	httpClient *http.Client
	token      string
}

func NewClient(baseURL, deviceID, deviceKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		deviceID:   deviceID,
		deviceKey:  deviceKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type loginRequest struct {
	DeviceID  string `json:"device_id"`
	DeviceKey string `json:"device_key"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{DeviceID: c.deviceID, DeviceKey: c.deviceKey})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/agent/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected with status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	c.token = lr.Token
	return nil
}

// do sends an authenticated request, logging in again once if the token has
// expired.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if c.token == "" {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			if err := c.login(ctx); err != nil {
				return nil, err
			}
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request to %s failed after re-login", path)
}

type jobsResponse struct {
	Jobs []*db.PrintJob `json:"jobs"`
}

func (c *Client) PendingJobs(ctx context.Context, deviceID string, limit int) ([]*db.PrintJob, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/agent/jobs?limit=%d", limit), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing jobs returned status %d", resp.StatusCode)
	}

	var jr jobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return nil, fmt.Errorf("failed to decode jobs response: %w", err)
	}
	return jr.Jobs, nil
}

func (c *Client) Claim(ctx context.Context, jobID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/agent/jobs/"+jobID+"/claim", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return jobstore.ErrAlreadyClaimed
	case http.StatusNotFound:
		return jobstore.ErrNotFound
	default:
		return fmt.Errorf("claim returned status %d", resp.StatusCode)
	}
}

func (c *Client) ReportPrinted(ctx context.Context, jobID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/agent/jobs/"+jobID+"/printed", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("reporting printed job returned status %d", resp.StatusCode)
	}
	return nil
}

type reportErrorRequest struct {
	Message string `json:"message"`
}

func (c *Client) ReportError(ctx context.Context, jobID, message string) error {
	body, err := json.Marshal(reportErrorRequest{Message: message})
	if err != nil {
		return fmt.Errorf("failed to encode error report: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/agent/jobs/"+jobID+"/error", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("reporting errored job returned status %d", resp.StatusCode)
	}
	return nil
}
