// Package resolver turns a selected search result into a direct download
// link through the add, select, info and unrestrict sequence.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zerr0-C00L/rdfetch/internal/metrics"
	"github.com/Zerr0-C00L/rdfetch/internal/models"
	"github.com/Zerr0-C00L/rdfetch/internal/notify"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
	"github.com/Zerr0-C00L/rdfetch/internal/services/tasks"
)

const (
	DefaultCleanupTimeout = 15 * time.Second

	msgReady        = "Download ready"
	msgCancelled    = "Download cancelled"
	msgInvalidInput = "Could not run your action because the magnet link is invalid."
)

// Client is the slice of debrid.Client a resolution needs.
type Client interface {
	AddMagnet(ctx context.Context, magnetLink string) (string, error)
	SelectFiles(ctx context.Context, remoteID string, fileIDs []int) error
	GetTorrentInfo(ctx context.Context, remoteID string, selectedIndex int) (string, error)
	UnrestrictLink(ctx context.Context, hostedLink string) (string, error)
	DeleteTorrent(ctx context.Context, remoteID string) error
}

// Records looks up availability records by magnet hash.
type Records interface {
	Record(hash string) (debrid.AvailabilityRecord, bool)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCleanupTimeout bounds the remote delete issued after a failed run.
func WithCleanupTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.cleanupTimeout = d
		}
	}
}

// WithResolvedHandler is called with the finished task when a supervised run
// produces a link.
func WithResolvedHandler(fn func(DownloadTask)) Option {
	return func(p *Pipeline) { p.onResolved = fn }
}

// WithProgressHandler is called after every step of the current run.
func WithProgressHandler(fn func(DownloadTask)) Option {
	return func(p *Pipeline) { p.onProgress = fn }
}

// Pipeline resolves torrents. Supervised runs started through Start replace
// one another; Resolve runs in the caller's goroutine.
type Pipeline struct {
	client         Client
	records        Records
	sink           notify.Sink
	logger         *slog.Logger
	cleanupTimeout time.Duration
	onResolved     func(DownloadTask)
	onProgress     func(DownloadTask)
	now            func() time.Time

	sup     tasks.Supervisor
	active  atomic.Int32
	startMu sync.Mutex

	mu        sync.Mutex
	currentID string
	last      *DownloadTask
}

func NewPipeline(client Client, records Records, sink notify.Sink, logger *slog.Logger, opts ...Option) *Pipeline {
	if sink == nil {
		sink = notify.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		client:         client,
		records:        records,
		sink:           sink,
		logger:         logger,
		cleanupTimeout: DefaultCleanupTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InProgress reports whether any run is still executing or unwinding.
func (p *Pipeline) InProgress() bool {
	return p.active.Load() > 0
}

// LastTask returns the newest supervised run.
func (p *Pipeline) LastTask() (DownloadTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return DownloadTask{}, false
	}
	return p.last.snapshot(), true
}

// Cancel stops the supervised run, if any.
func (p *Pipeline) Cancel() {
	p.sup.Cancel()
}

// Wait blocks until the supervised run, if any, has finished.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := p.sup.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve runs one resolution and returns the direct link.
func (p *Pipeline) Resolve(ctx context.Context, result models.SearchResult, choice *debrid.FileChoice) (string, error) {
	task := newTask(result, choice, p.now())
	return p.run(ctx, task, func() {})
}

// Start runs a resolution in the background, replacing the current one, and
// reports its outcome through the sink.
func (p *Pipeline) Start(ctx context.Context, result models.SearchResult, choice *debrid.FileChoice) DownloadTask {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	task := newTask(result, choice, p.now())
	snap := task.snapshot()
	p.mu.Lock()
	p.currentID = task.ID
	p.last = &snap
	p.mu.Unlock()

	p.sup.Start(ctx, func(ctx context.Context) {
		p.supervise(ctx, task)
	})
	return snap
}

func (p *Pipeline) supervise(ctx context.Context, task *DownloadTask) {
	logger := p.logger.With("task", task.ID)
	url, err := p.run(ctx, task, func() { p.publish(task) })
	if err != nil && ctx.Err() != nil && !debrid.IsCancelled(err) {
		err = fmt.Errorf("%w: %v", debrid.ErrCancelled, err)
	}

	if err == nil {
		var snap DownloadTask
		committed := p.sup.Commit(ctx, func() {
			task.URL = url
			task.finish(TaskReady, nil, p.now())
			snap, _ = p.store(task)
		})
		if !committed {
			logger.Info("resolution finished after it was replaced, result discarded")
			return
		}
		p.progress(snap)
		p.sink.Report(msgReady, notify.SeverityInfo)
		if p.onResolved != nil {
			p.onResolved(snap)
		}
		return
	}

	if debrid.IsCancelled(err) {
		cause := context.Cause(ctx)
		task.finish(TaskCancelled, err, p.now())
		if !p.publish(task) || errors.Is(cause, tasks.ErrSuperseded) {
			logger.Info("resolution superseded")
			return
		}
		if errors.Is(cause, tasks.ErrCancelled) {
			p.sink.Report(msgCancelled, notify.SeverityInfo)
			return
		}
		logger.Info("resolution stopped", "cause", cause)
		return
	}

	task.finish(TaskFailed, err, p.now())
	if !p.publish(task) {
		logger.Info("resolution failed after it was replaced", "error", err)
		return
	}
	if errors.Is(err, debrid.ErrInvalidInput) {
		p.sink.Report(msgInvalidInput, notify.SeverityError)
		return
	}
	p.sink.Report(fmt.Sprintf("RealDebrid download error: %v", err), notify.SeverityError)
}

// publish stores a snapshot of task and fires the progress handler when task
// is still the current run.
func (p *Pipeline) publish(task *DownloadTask) bool {
	snap, ok := p.store(task)
	if ok {
		p.progress(snap)
	}
	return ok
}

// store keeps a snapshot of task as the last task. The task itself is owned
// by its run goroutine; only snapshots cross goroutines.
func (p *Pipeline) store(task *DownloadTask) (DownloadTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentID != task.ID {
		return DownloadTask{}, false
	}
	snap := task.snapshot()
	p.last = &snap
	return snap, true
}

func (p *Pipeline) progress(snap DownloadTask) {
	if p.onProgress != nil {
		p.onProgress(snap)
	}
}

// begin raises the progress flag; the returned func lowers it exactly once.
func (p *Pipeline) begin() func() {
	p.active.Add(1)
	metrics.ResolutionInProgress.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.active.Add(-1)
			metrics.ResolutionInProgress.Dec()
		})
	}
}

func (p *Pipeline) run(ctx context.Context, task *DownloadTask, step func()) (url string, err error) {
	release := p.begin()
	defer release()

	start := p.now()
	logger := p.logger.With("task", task.ID, "title", task.Result.Title)
	defer func() {
		metrics.ResolutionsTotal.WithLabelValues(debrid.Kind(err)).Inc()
		metrics.ResolutionDuration.Observe(p.now().Sub(start).Seconds())
	}()

	result := task.Result
	if !result.HasMagnetLink() {
		return "", fmt.Errorf("resolve %q: magnet link missing: %w", result.Title, debrid.ErrInvalidInput)
	}

	task.State = TaskAdding
	step()
	remoteID, err := p.client.AddMagnet(ctx, result.MagnetLink)
	if err != nil {
		return "", debrid.Classify("add magnet", err)
	}
	task.RemoteID = remoteID
	logger = logger.With("remote_id", remoteID)

	defer func() {
		if err != nil {
			p.cleanup(ctx, logger, remoteID)
		}
	}()

	fileIDs, selectedIndex, err := p.fileSelection(result, task.Choice)
	if err != nil {
		return "", err
	}

	task.State = TaskSelecting
	step()
	if err := p.client.SelectFiles(ctx, remoteID, fileIDs); err != nil {
		return "", debrid.Classify("select files", err)
	}

	task.State = TaskFetching
	step()
	hosted, err := p.client.GetTorrentInfo(ctx, remoteID, selectedIndex)
	if err != nil {
		return "", debrid.Classify("torrent info", err)
	}

	task.State = TaskUnrestricting
	step()
	url, err = p.client.UnrestrictLink(ctx, hosted)
	if err != nil {
		return "", debrid.Classify("unrestrict link", err)
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("resolve: %w", debrid.ErrCancelled)
	}

	logger.Info("resolution complete")
	return url, nil
}

// fileSelection maps a file choice onto the batch ids to select and the link
// index to read. Without a choice every file is selected.
func (p *Pipeline) fileSelection(result models.SearchResult, choice *debrid.FileChoice) ([]int, int, error) {
	if choice == nil {
		return nil, 0, nil
	}
	if p.records == nil {
		return nil, 0, fmt.Errorf("select %q: no availability records: %w", choice.Name, debrid.ErrNotFound)
	}
	record, ok := p.records.Record(result.Hash())
	if !ok {
		return nil, 0, fmt.Errorf("select %q: no availability record for %s: %w", choice.Name, result.Hash(), debrid.ErrNotFound)
	}
	if choice.BatchIndex < 0 || choice.BatchIndex >= len(record.Batches) {
		return nil, 0, fmt.Errorf("select %q: batch %d of %d: %w", choice.Name, choice.BatchIndex, len(record.Batches), debrid.ErrNotFound)
	}
	return record.Batches[choice.BatchIndex].FileIDs(), choice.BatchFileIndex, nil
}

// cleanup deletes the remote torrent on a context that survives the run's
// cancellation. Failures are only logged.
func (p *Pipeline) cleanup(ctx context.Context, logger *slog.Logger, remoteID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cleanupTimeout)
	defer cancel()

	if err := p.client.DeleteTorrent(cctx, remoteID); err != nil {
		metrics.TorrentCleanupsTotal.WithLabelValues("error").Inc()
		logger.Warn("failed to delete torrent after unsuccessful resolution", "error", err)
		return
	}
	metrics.TorrentCleanupsTotal.WithLabelValues("ok").Inc()
	logger.Debug("deleted torrent after unsuccessful resolution")
}
