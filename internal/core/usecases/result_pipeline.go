package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/logging"
	"github.com/creerlio/discovery/internal/pkg/metrics"
)

// Searcher produces result sets for a filter snapshot.
type Searcher interface {
	Search(ctx context.Context, f domain.FilterState) (*domain.ResultSet, error)
}

// ResultPipeline runs searches for successive filter snapshots and delivers only
// the latest one to its sink. Each new fetch cancels the previous one; a fetch
// whose snapshot matches the one already shown or in flight is skipped.
type ResultPipeline struct {
	search Searcher
	sink   ports.ResultSink
	logger *slog.Logger

	mu            sync.Mutex
	seq           uint64
	inflight      string
	cancel        context.CancelFunc
	lastCompleted string

	// deliverMu orders deliveries; it is always taken before mu.
	deliverMu sync.Mutex
	wg        sync.WaitGroup
}

// NewResultPipeline creates a pipeline delivering to sink.
func NewResultPipeline(search Searcher, sink ports.ResultSink, logger *slog.Logger) *ResultPipeline {
	return &ResultPipeline{search: search, sink: sink, logger: logging.OrDefault(logger)}
}

// Fetch starts a search for f unless it would reproduce what is already shown or
// being fetched. It reports whether a new search was started.
func (p *ResultPipeline) Fetch(ctx context.Context, f domain.FilterState) bool {
	fp := f.Fingerprint()

	p.mu.Lock()
	if p.cancel != nil && fp == p.inflight {
		p.mu.Unlock()
		metrics.FetchesTotal.WithLabelValues("skipped").Inc()
		return false
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.inflight = ""
		metrics.FetchesTotal.WithLabelValues("superseded").Inc()
	}
	p.seq++
	if fp == p.lastCompleted {
		// Back to the snapshot on screen: dropping the in-flight fetch is enough.
		p.mu.Unlock()
		metrics.FetchesTotal.WithLabelValues("skipped").Inc()
		return false
	}

	seq := p.seq
	fctx, cancel := context.WithCancel(ctx)
	p.inflight = fp
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	metrics.FetchesTotal.WithLabelValues("started").Inc()
	go p.run(fctx, cancel, seq, fp, f)
	return true
}

func (p *ResultPipeline) run(ctx context.Context, cancel context.CancelFunc, seq uint64, fp string, f domain.FilterState) {
	defer p.wg.Done()
	defer cancel()

	rs, err := p.search.Search(ctx, f)

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if seq != p.seq || ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.inflight = ""
	p.cancel = nil
	if err != nil {
		// Allow the same snapshot to be retried.
		p.lastCompleted = ""
	} else {
		p.lastCompleted = fp
	}
	p.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		metrics.FetchesTotal.WithLabelValues("failed").Inc()
		p.logger.Warn("result fetch failed", "error", err)
		p.sink.DeliverError(err)
		return
	}
	metrics.FetchesTotal.WithLabelValues("delivered").Inc()
	p.sink.DeliverResults(*rs)
}

// Current returns the fingerprint of the last delivered result set.
func (p *ResultPipeline) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCompleted
}

// Wait blocks until no fetch is running.
func (p *ResultPipeline) Wait() {
	p.wg.Wait()
}

// Close cancels any in-flight fetch.
func (p *ResultPipeline) Close() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.inflight = ""
	}
	p.seq++
	p.mu.Unlock()
}
