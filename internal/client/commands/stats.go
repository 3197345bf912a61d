package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/iKenshu/quodpot-game/internal/server"
)

// StatsCommand prints the queues and active sessions of a running server
type StatsCommand struct {
	Timeout time.Duration `long:"timeout" default:"5s" help:"Request timeout"`
}

func (cmd *StatsCommand) Run(flags *GlobalFlags) error {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return err
	}

	stats, err := fetchStats(cfg.GetServerURL(), cmd.Timeout)
	if err != nil {
		return err
	}
	printStats(stats)
	return nil
}

const defaultTimeout = 5 * time.Second

func statsURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/stats"
	return u.String(), nil
}

func fetchStats(serverURL string, timeout time.Duration) (*server.StatsResponse, error) {
	endpoint, err := statsURL(serverURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("stats request failed: %s: %s", resp.Status, body)
	}

	var stats server.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("invalid stats response: %w", err)
	}
	return &stats, nil
}

func printStats(stats *server.StatsResponse) {
	fmt.Printf("Connections: %d\n", stats.Connections)

	if len(stats.Queues) == 0 {
		fmt.Println("No game types registered")
	} else {
		fmt.Println("Queues:")
		for _, q := range stats.Queues {
			line := fmt.Sprintf("  %s: %d waiting (start at %d, max %d)", q.GameType, q.Queued, q.MinPlayers, q.MaxPlayers)
			if q.TimerArmed {
				line += fmt.Sprintf(", longest wait %s", q.LongestWait.Round(time.Second))
			}
			fmt.Println(line)
		}
	}

	gameTypes := make([]string, 0, len(stats.ActiveSessions))
	for gt := range stats.ActiveSessions {
		gameTypes = append(gameTypes, gt)
	}
	sort.Strings(gameTypes)
	fmt.Println("Active sessions:")
	for _, gt := range gameTypes {
		fmt.Printf("  %s: %d\n", gt, stats.ActiveSessions[gt])
	}
}
