package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// daemonClient calls the local HTTP API of a running daemon.
type daemonClient struct {
	base string
	http *http.Client
}

func newDaemonClient(base string) *daemonClient {
	return &daemonClient{base: base, http: &http.Client{Timeout: 30 * time.Second}}
}

type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *daemonClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e apiError
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("daemon: %s", e.Error)
		}
		return fmt.Errorf("daemon: unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *daemonClient) snooze(ctx context.Context, guid string) (time.Time, error) {
	var resp struct {
		Until time.Time `json:"until"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(guid)+"/snooze", &resp)
	return resp.Until, err
}

func (c *daemonClient) dismiss(ctx context.Context, guid string) error {
	return c.do(ctx, http.MethodPost, "/api/alarms/"+url.PathEscape(guid)+"/dismiss", nil)
}

func (c *daemonClient) forceSync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/sync", nil)
}
