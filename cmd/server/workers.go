package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

type tokenRefresher interface {
	RefreshToken(ctx context.Context) error
}

type enabledChecker interface {
	Enabled() bool
}

// tokenRefreshWorker keeps the device access token fresh while Real-Debrid is
// enabled so user requests never block on a refresh.
func tokenRefreshWorker(ctx context.Context, rd tokenRefresher, state enabledChecker, interval time.Duration, logger *slog.Logger) {
	logger.Info("token refresh worker starting", "interval", interval)

	// Don't run immediately - requests refresh on demand when the token is stale
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("token refresh worker stopping")
			return
		case <-ticker.C:
			runTokenRefresh(ctx, rd, state, logger)
		}
	}
}

func runTokenRefresh(ctx context.Context, rd tokenRefresher, state enabledChecker, logger *slog.Logger) bool {
	if !state.Enabled() {
		logger.Debug("token refresh skipped, Real-Debrid disabled")
		return false
	}
	err := rd.RefreshToken(ctx)
	switch {
	case err == nil:
		return true
	case debrid.IsCancelled(err):
		return false
	case errors.Is(err, debrid.ErrNotAuthenticated):
		logger.Warn("token refresh skipped, no stored credentials")
	default:
		logger.Error("token refresh failed", "error", err)
	}
	return false
}
