package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Zerr0-C00L/rdfetch/internal/models"
	"github.com/Zerr0-C00L/rdfetch/internal/notify"
	"github.com/Zerr0-C00L/rdfetch/internal/services/auth"
	"github.com/Zerr0-C00L/rdfetch/internal/services/availability"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
	"github.com/Zerr0-C00L/rdfetch/internal/services/resolver"
)

// Event types published by the manager.
const (
	EventAuthState    = "auth.state"
	EventVerification = "auth.verification"
	EventDownload     = "download.progress"
	EventResolved     = "download.resolved"
)

// Event is a state change pushed to live listeners.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ManagerConfig wires a DebridManager.
type ManagerConfig struct {
	Client         debrid.Client
	Store          auth.Store
	Sink           notify.Sink
	Logger         *slog.Logger
	CleanupTimeout time.Duration
	// OnEvent receives state changes; it must not block.
	OnEvent func(Event)
}

// DebridManager is the single entry point the HTTP and CLI layers use. It
// owns the availability index, the device authorization coordinator and the
// resolution pipeline.
type DebridManager struct {
	Index    *availability.Index
	Auth     *auth.Coordinator
	Resolver *resolver.Pipeline

	logger *slog.Logger
}

func NewDebridManager(cfg ManagerConfig) *DebridManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = notify.LogSink{Logger: logger}
	}
	emit := func(eventType string, data any) {
		if cfg.OnEvent != nil {
			cfg.OnEvent(Event{Type: eventType, Data: data})
		}
	}

	index := availability.NewIndex(cfg.Client, sink, logger.With("component", "availability"))
	coordinator := auth.NewCoordinator(cfg.Client, cfg.Store, sink, logger.With("component", "auth"),
		auth.WithVerificationHandler(func(s auth.Session) { emit(EventVerification, s) }),
		auth.WithStateHandler(func(s auth.Session) { emit(EventAuthState, s) }),
	)
	pipeline := resolver.NewPipeline(cfg.Client, index, sink, logger.With("component", "resolver"),
		resolver.WithCleanupTimeout(cfg.CleanupTimeout),
		resolver.WithProgressHandler(func(t resolver.DownloadTask) { emit(EventDownload, t) }),
		resolver.WithResolvedHandler(func(t resolver.DownloadTask) { emit(EventResolved, t) }),
	)

	return &DebridManager{
		Index:    index,
		Auth:     coordinator,
		Resolver: pipeline,
		logger:   logger,
	}
}

// Load restores persisted state.
func (m *DebridManager) Load(ctx context.Context) error {
	return m.Auth.Load(ctx)
}

func (m *DebridManager) Enabled() bool {
	return m.Auth.Enabled()
}

// ResultStatus pairs a search result with its availability.
type ResultStatus struct {
	Result models.SearchResult `json:"result"`
	Status availability.Status `json:"status"`
}

// CheckResults rebuilds the index from results and returns their statuses in
// input order.
func (m *DebridManager) CheckResults(ctx context.Context, results []models.SearchResult) []ResultStatus {
	m.Index.Populate(ctx, results)
	out := make([]ResultStatus, len(results))
	for i := range results {
		out[i] = ResultStatus{Result: results[i], Status: m.Index.Match(&results[i])}
	}
	return out
}

// Resolve starts a supervised resolution, replacing any run in progress.
func (m *DebridManager) Resolve(ctx context.Context, result models.SearchResult, choice *debrid.FileChoice) resolver.DownloadTask {
	return m.Resolver.Start(ctx, result, choice)
}

// Shutdown cancels every background attempt and waits for them to unwind.
func (m *DebridManager) Shutdown(ctx context.Context) error {
	m.Resolver.Cancel()
	m.Auth.Cancel()
	if err := m.Resolver.Wait(ctx); err != nil {
		return err
	}
	return m.Auth.Wait(ctx)
}
