package daemon

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/entities"
	"github.com/neur0map/yinx/internal/filter"
	"github.com/neur0map/yinx/internal/index"
	"github.com/neur0map/yinx/internal/patterns"
	"github.com/neur0map/yinx/internal/storage/blob"
	"github.com/neur0map/yinx/internal/types"
)

// PipelineCounters is a snapshot of the pipeline's lifetime counters.
type PipelineCounters struct {
	Submitted int64 `json:"submitted"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}

// Pipeline is the daemon's capture processing path. Submissions go
// through a bounded channel into a single worker goroutine, so captures
// are processed in submission order and one slow capture never blocks
// the accepting side past the buffer.
type Pipeline struct {
	cfg   *config.Config
	db    *database.DB
	store *blob.Store

	// registry is swapped atomically on reload; each capture reads it
	// once, so a capture never sees a half-applied pattern set.
	registry atomic.Pointer[patterns.Registry]

	sessions database.SessionDAO
	captures database.CaptureDAO
	blobs    database.BlobDAO
	chunkDAO database.ChunkDAO
	entities database.EntityDAO

	graph   *entities.Graph
	builder *index.Builder
	logger  *slog.Logger

	// filters holds one reducer pipeline per session so tier 1 dedup
	// state does not bleed across sessions.
	mu      sync.Mutex
	filters map[types.ID]*filter.Pipeline

	intake chan *CaptureRequest
	done   chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewPipeline wires the capture pipeline. Start must be called before
// Submit.
func NewPipeline(
	cfg *config.Config,
	db *database.DB,
	store *blob.Store,
	registry *patterns.Registry,
	sessions database.SessionDAO,
	captures database.CaptureDAO,
	blobs database.BlobDAO,
	chunks database.ChunkDAO,
	entityDAO database.EntityDAO,
	graph *entities.Graph,
	builder *index.Builder,
	logger *slog.Logger,
) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		db:       db,
		store:    store,
		sessions: sessions,
		captures: captures,
		blobs:    blobs,
		chunkDAO: chunks,
		entities: entityDAO,
		graph:    graph,
		builder:  builder,
		logger:   logger.With("component", "pipeline"),
		filters:  make(map[types.ID]*filter.Pipeline),
		intake:   make(chan *CaptureRequest, cfg.Capture.BufferSize),
		done:     make(chan struct{}),
	}
	p.registry.Store(registry)
	return p
}

// SwapRegistry replaces the pattern registry. Captures already in the
// buffer pick up the new registry when processed; sessions with live
// reducer state keep their compiled tier patterns until released.
func (p *Pipeline) SwapRegistry(registry *patterns.Registry) {
	p.registry.Store(registry)
}

// Start launches the worker goroutine. The worker drains the intake
// channel until Close; ctx cancellation aborts the capture currently
// being processed.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for req := range p.intake {
			if err := p.process(ctx, req); err != nil {
				p.failed.Add(1)
				p.logger.Error("capture processing failed",
					"session_id", req.SessionID,
					"command", req.Command,
					"error", err)
				continue
			}
			p.processed.Add(1)
		}
	}()
}

// Submit enqueues one capture without blocking. A full buffer returns
// a retryable backpressure error and the capture is dropped; the shell
// hook treats that as fire-and-forget loss, not a failure.
func (p *Pipeline) Submit(req *CaptureRequest) error {
	if p.closed.Load() {
		return types.NewError(types.PIPELINE_CLOSED, "capture pipeline is shut down")
	}
	select {
	case p.intake <- req:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return types.NewRetryableError(types.PIPELINE_BACKPRESSURE,
			"capture buffer full, dropping capture")
	}
}

// Close stops intake and waits for the worker to drain the buffer, or
// for ctx to expire.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.intake)
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return types.WrapError(types.OP_CANCELLED,
			"timed out draining capture pipeline", ctx.Err())
	}
}

// Counters returns a snapshot of the pipeline counters.
func (p *Pipeline) Counters() PipelineCounters {
	return PipelineCounters{
		Submitted: p.submitted.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		Queued:    len(p.intake),
	}
}

// sessionFilter returns the reducer pipeline for a session, creating
// it on first use.
func (p *Pipeline) sessionFilter(sessionID types.ID) *filter.Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	fp, ok := p.filters[sessionID]
	if !ok {
		fp = filter.NewPipeline(p.registry.Load(), p.cfg.Filtering)
		p.filters[sessionID] = fp
	}
	return fp
}

// ReleaseSession drops the per-session reducer state. Called when a
// session stops so dedup counts do not accumulate forever.
func (p *Pipeline) ReleaseSession(sessionID types.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.filters, sessionID)
}

// process runs one capture through the full path: raw output into the
// blob store, entity extraction, the three-tier reducer, then a single
// transaction committing the capture row, blob refcount, entities,
// chunks, and session counters together. Indexing runs after commit.
func (p *Pipeline) process(ctx context.Context, req *CaptureRequest) error {
	registry := p.registry.Load()

	result, err := p.store.Write([]byte(req.Output))
	if err != nil {
		return err
	}

	capture := &types.Capture{
		SessionID:  req.SessionID,
		Timestamp:  time.Unix(req.Timestamp, 0).UTC(),
		Command:    req.Command,
		OutputHash: result.Hash,
		Tool:       registry.DetectTool(req.Command),
		ExitCode:   req.ExitCode,
		CWD:        req.CWD,
	}

	extracted := entities.NewExtractor(registry).Extract(req.Output)
	chunks := p.reduce(capture, req)

	var blobDelta int64
	if !result.Existed {
		blobDelta = 1
	}

	// A failure anywhere rolls back the whole capture; the blob bytes
	// on disk stay behind unreferenced until GC.
	err = p.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := p.captures.InsertTx(ctx, tx, capture); err != nil {
			return err
		}
		if err := p.blobs.UpsertTx(ctx, tx, &types.Blob{
			Hash:       result.Hash,
			Size:       result.Size,
			Compressed: result.Compressed,
		}); err != nil {
			return err
		}
		for _, ent := range extracted {
			ent.CaptureID = capture.ID
		}
		if err := p.entities.InsertBatchTx(ctx, tx, extracted); err != nil {
			return err
		}
		for _, chunk := range chunks {
			chunk.CaptureID = capture.ID
		}
		if err := p.chunkDAO.InsertBatchTx(ctx, tx, chunks); err != nil {
			return err
		}
		return p.sessions.IncrementCountersTx(ctx, tx, req.SessionID, 1, blobDelta)
	})
	if err != nil {
		return err
	}

	if len(extracted) > 0 {
		p.graph.Observe(extracted, capture.Timestamp)
	}

	if len(chunks) > 0 {
		if _, err := p.builder.IndexChunks(ctx, chunks); err != nil {
			// Chunks are persisted; the startup Sweep embeds them later.
			p.logger.Warn("indexing deferred",
				"capture_id", capture.ID, "error", err)
		}
	}
	return nil
}

// reduce runs the capture output through the session's reducer and
// shapes the surviving clusters into chunk rows. Capture IDs are
// filled in once the capture row is inserted.
func (p *Pipeline) reduce(capture *types.Capture, req *CaptureRequest) []*types.Chunk {
	lines := splitLines(req.Output)
	if len(lines) == 0 {
		return nil
	}

	clusters, stats := p.sessionFilter(req.SessionID).Process(lines)
	p.logger.Debug("capture reduced",
		"session_id", req.SessionID,
		"tool", capture.Tool,
		"input_lines", stats.Input,
		"after_tier1", stats.AfterTier1,
		"after_tier2", stats.AfterTier2,
		"clusters", stats.Clusters)

	chunks := make([]*types.Chunk, 0, len(clusters))
	for _, cluster := range clusters {
		chunks = append(chunks, &types.Chunk{
			BlobHash:           capture.OutputHash,
			RepresentativeText: cluster.Representative,
			ClusterSize:        cluster.Size,
			Metadata: types.ChunkMetadata{
				Pattern:   cluster.Pattern,
				Members:   cluster.Size,
				Singleton: cluster.Metadata["singleton"] == "true",
				Split:     cluster.Metadata["split"] == "true",
			},
		})
	}
	return chunks
}

// splitLines breaks raw output into non-empty lines.
func splitLines(output string) []string {
	raw := strings.Split(output, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
