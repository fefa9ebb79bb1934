package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PostTrigger asks the daemon listening on addr to queue action.
func PostTrigger(ctx context.Context, addr, action string) (*TriggerResponse, error) {
	if addr == "" {
		return nil, fmt.Errorf("daemon address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	body, err := json.Marshal(TriggerRequest{Action: action})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(addr, "/")+"/trigger", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("daemon rejected %s: %s", action, e.Error)
		}
		return nil, fmt.Errorf("daemon rejected %s: status %d", action, resp.StatusCode)
	}

	var out TriggerResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode daemon reply: %w", err)
	}
	return &out, nil
}
