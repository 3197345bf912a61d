package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WaitForHealthy polls /health until it answers 200 OK. baseURL may use the
// http or the ws scheme. The last failure is returned when ctx ends first.
func WaitForHealthy(ctx context.Context, baseURL string) error {
	healthURL := strings.TrimSuffix(baseURL, "/ws")
	if strings.HasPrefix(healthURL, "ws") {
		healthURL = "http" + strings.TrimPrefix(healthURL, "ws")
	}
	healthURL += "/health"
	client := &http.Client{Timeout: time.Second}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var last error
	for {
		if err := checkHealth(ctx, client, healthURL); err == nil {
			return nil
		} else if ctx.Err() == nil {
			last = err
		}

		select {
		case <-ctx.Done():
			if last == nil {
				last = ctx.Err()
			}
			return fmt.Errorf("server at %s not healthy: %w", baseURL, last)
		case <-ticker.C:
		}
	}
}

func checkHealth(ctx context.Context, client *http.Client, healthURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	return nil
}
