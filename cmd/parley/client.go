package main

import (
	"fmt"
	"time"

	"github.com/kalambet/parley/internal/config"
	"github.com/kalambet/parley/internal/session"
)

// Slack on top of the generation timeout for the server's own work.
const clientTimeoutSlack = 15 * time.Second

var newAPIClient = func() (*session.HTTPClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return session.NewHTTPClient(cfg.BaseURL(), cfg.Server.Token, cfg.Generation.Timeout+clientTimeoutSlack), nil
}
