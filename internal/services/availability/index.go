// Package availability keeps the instant-availability view of the current
// search results.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Zerr0-C00L/rdfetch/internal/magnet"
	"github.com/Zerr0-C00L/rdfetch/internal/metrics"
	"github.com/Zerr0-C00L/rdfetch/internal/models"
	"github.com/Zerr0-C00L/rdfetch/internal/notify"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

// Status is how much of a result is instantly available.
type Status string

const (
	StatusNone    Status = "none"
	StatusPartial Status = "partial"
	StatusFull    Status = "full"
)

// StatusOf applies the batch rule to a record.
func StatusOf(record debrid.AvailabilityRecord) Status {
	if len(record.Batches) == 0 {
		return StatusFull
	}
	return StatusPartial
}

// Querier is the slice of debrid.Client the index needs.
type Querier interface {
	QueryAvailability(ctx context.Context, hashes []string) (map[string]debrid.AvailabilityRecord, error)
}

// Index maps normalized magnet hashes to their availability records.
type Index struct {
	client Querier
	sink   notify.Sink
	logger *slog.Logger

	mu       sync.RWMutex
	records  map[string]debrid.AvailabilityRecord
	selected *debrid.AvailabilityRecord
}

func NewIndex(client Querier, sink notify.Sink, logger *slog.Logger) *Index {
	if sink == nil {
		sink = notify.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		client:  client,
		sink:    sink,
		logger:  logger,
		records: make(map[string]debrid.AvailabilityRecord),
	}
}

// Populate rebuilds the index from results with a single availability query.
// On cancellation nothing changes and nothing is reported; on failure the
// previous mapping is kept and the error goes to the sink.
func (x *Index) Populate(ctx context.Context, results []models.SearchResult) {
	hashes := distinctHashes(results)
	if len(hashes) == 0 {
		x.replace(map[string]debrid.AvailabilityRecord{})
		metrics.AvailabilityQueriesTotal.WithLabelValues("empty").Inc()
		return
	}

	found, err := x.client.QueryAvailability(ctx, hashes)
	if err != nil {
		err = debrid.Classify("instant availability", err)
		if debrid.IsCancelled(err) {
			x.logger.Debug("availability query cancelled", "hashes", len(hashes))
			metrics.AvailabilityQueriesTotal.WithLabelValues("cancelled").Inc()
			return
		}
		x.logger.Error("availability query failed", "hashes", len(hashes), "error", err)
		metrics.AvailabilityQueriesTotal.WithLabelValues("error").Inc()
		x.sink.Report(fmt.Sprintf("RealDebrid hash error: %v", err), notify.SeverityError)
		return
	}
	// a late answer for a cancelled query must not overwrite newer state
	if ctx.Err() != nil {
		metrics.AvailabilityQueriesTotal.WithLabelValues("cancelled").Inc()
		return
	}

	records := make(map[string]debrid.AvailabilityRecord, len(found))
	for hash, record := range found {
		hash = models.NormalizeHash(hash)
		record.Hash = hash
		records[hash] = record
	}
	x.replace(records)
	metrics.AvailabilityQueriesTotal.WithLabelValues("ok").Inc()
	x.logger.Debug("availability index rebuilt", "queried", len(hashes), "cached", len(records))
}

func (x *Index) replace(records map[string]debrid.AvailabilityRecord) {
	x.mu.Lock()
	x.records = records
	x.mu.Unlock()
	metrics.AvailabilityRecords.Set(float64(len(records)))
}

// Match returns the availability status of result.
func (x *Index) Match(result *models.SearchResult) Status {
	if result == nil {
		return StatusNone
	}
	hash := result.Hash()
	if hash == "" {
		return StatusNone
	}
	x.mu.RLock()
	record, ok := x.records[hash]
	x.mu.RUnlock()
	if !ok {
		return StatusNone
	}
	return StatusOf(record)
}

// SelectResult makes the record of result the selected item.
func (x *Index) SelectResult(result *models.SearchResult) (debrid.AvailabilityRecord, error) {
	if result == nil || result.Hash() == "" {
		x.sink.Report("Could not find the torrent magnet hash", notify.SeverityError)
		return debrid.AvailabilityRecord{}, fmt.Errorf("select result: magnet hash missing: %w", debrid.ErrNotFound)
	}
	hash := result.Hash()

	x.mu.Lock()
	record, ok := x.records[hash]
	if ok {
		selected := record
		x.selected = &selected
	}
	x.mu.Unlock()

	if !ok {
		x.sink.Report(fmt.Sprintf("Could not find the associated RealDebrid entry for magnet hash %s", hash), notify.SeverityError)
		return debrid.AvailabilityRecord{}, fmt.Errorf("select result %s: %w", hash, debrid.ErrNotFound)
	}
	return record, nil
}

// Selected returns the last record chosen through SelectResult.
func (x *Index) Selected() (debrid.AvailabilityRecord, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.selected == nil {
		return debrid.AvailabilityRecord{}, false
	}
	return *x.selected, true
}

// Record looks up a hash directly.
func (x *Index) Record(hash string) (debrid.AvailabilityRecord, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	record, ok := x.records[models.NormalizeHash(hash)]
	return record, ok
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

func distinctHashes(results []models.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	hashes := make([]string, 0, len(results))
	for _, r := range results {
		h := r.Hash()
		// malformed hashes would change the request path; they stay unmatched
		if h == "" || !magnet.ValidHash(h) {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	return hashes
}
