package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Zerr0-C00L/rdfetch/internal/models"
	"github.com/Zerr0-C00L/rdfetch/internal/services"
	"github.com/Zerr0-C00L/rdfetch/internal/services/availability"
)

// AvailabilityScanner serialises availability checks and periodically
// re-checks the most recent result set, since cache state on the remote side
// changes over time.
type AvailabilityScanner struct {
	manager  *services.DebridManager
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	results []models.SearchResult

	loopMu   sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewAvailabilityScanner creates a scanner. An interval <= 0 disables the
// periodic re-check.
func NewAvailabilityScanner(manager *services.DebridManager, interval time.Duration, logger *slog.Logger) *AvailabilityScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityScanner{
		manager:  manager,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Check rebuilds the index from results and remembers them for re-scans.
func (s *AvailabilityScanner) Check(ctx context.Context, results []models.SearchResult) []services.ResultStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append([]models.SearchResult(nil), results...)
	return s.manager.CheckResults(ctx, results)
}

// Start begins the periodic re-check cycle. Only the first call has an
// effect, and none after Stop.
func (s *AvailabilityScanner) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.wg.Add(1)

	s.logger.Info("availability scanner started", "interval", s.interval)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ScanOnce(ctx)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the periodic re-check and waits for a running scan to return.
func (s *AvailabilityScanner) Stop() {
	s.loopMu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
	}
	s.loopMu.Unlock()
	s.wg.Wait()
}

// ScanOnce re-checks the remembered results. It returns the number of
// results checked.
func (s *AvailabilityScanner) ScanOnce(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return 0
	}
	statuses := s.manager.CheckResults(ctx, s.results)
	cached := 0
	for _, st := range statuses {
		if st.Status != availability.StatusNone {
			cached++
		}
	}
	s.logger.Debug("availability re-scan complete", "results", len(statuses), "cached", cached)
	return len(statuses)
}
