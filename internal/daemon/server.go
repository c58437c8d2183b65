package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/embedding"
	"github.com/neur0map/yinx/internal/entities"
	"github.com/neur0map/yinx/internal/index"
	"github.com/neur0map/yinx/internal/patterns"
	"github.com/neur0map/yinx/internal/retrieval"
	"github.com/neur0map/yinx/internal/storage/blob"
	"github.com/neur0map/yinx/internal/types"
	"github.com/neur0map/yinx/pkg/version"
)

// shutdownDrainTimeout bounds how long Close waits for the pipeline to
// finish in-flight captures.
const shutdownDrainTimeout = 30 * time.Second

// StatusReport is the daemon's answer to a status request.
type StatusReport struct {
	Version       string              `json:"version"`
	PID           int                 `json:"pid"`
	StartedAt     time.Time           `json:"started_at"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	ActiveSession *types.Session      `json:"active_session,omitempty"`
	Pipeline      PipelineCounters    `json:"pipeline"`
	ChunkCount    int64               `json:"chunk_count"`
	VectorCount   int                 `json:"vector_count"`
	Graph         entities.GraphStats `json:"graph"`
	Database      types.HealthStatus  `json:"database"`
}

// Server is the yinx daemon: it owns the database, the blob store, the
// indexes, and the capture pipeline, and serves hook and CLI clients
// over a unix socket.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db    *database.DB
	store *blob.Store

	sessions database.SessionDAO
	captures database.CaptureDAO
	chunks   database.ChunkDAO

	graph    *entities.Graph
	vectors  *index.VectorIndex
	pipeline *Pipeline
	searcher *retrieval.Searcher

	listener  *Listener
	startedAt time.Time
	pid       int

	connWG   sync.WaitGroup
	shutdown chan struct{}
	stopOnce sync.Once
}

// NewServer opens all daemon state under cfg.Storage.DataRoot and
// wires the processing pipeline and search path. It does not bind the
// socket; call Run.
func NewServer(cfg *config.Config, pid int, logger *slog.Logger) (*Server, error) {
	registry, err := patterns.NewRegistry(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(filepath.Join(cfg.Storage.DataRoot, "yinx.db"))
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}

	store, err := blob.NewStore(
		filepath.Join(cfg.Storage.DataRoot, "blobs"),
		cfg.Storage.MaxBlobSize,
		cfg.Storage.CompressionThreshold,
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		db.Close()
		return nil, err
	}

	vectors := index.NewVectorIndex(filepath.Join(cfg.Storage.DataRoot, "index"), cfg.Indexing)
	if err := vectors.Load(); err != nil {
		// The unreadable file is quarantined; the index starts empty and
		// is rebuilt from stored embeddings once the builder is wired.
		logger.Warn("vector index load failed", "error", err)
	}
	keywords := index.NewKeywordIndex(db)

	sessions := database.NewSessionDAO(db)
	captures := database.NewCaptureDAO(db)
	blobs := database.NewBlobDAO(db)
	chunks := database.NewChunkDAO(db)
	entityDAO := database.NewEntityDAO(db)
	embeddings := database.NewEmbeddingDAO(db)

	builder := index.NewBuilder(chunks, embeddings, embedder, vectors, cfg.Embedding, logger)

	// An empty index (absent or quarantined file) is restored from the
	// stored embedding rows; either way, chunks without an embedding are
	// re-embedded before the daemon serves.
	const startupSweepLimit = 10000
	if vectors.Len() == 0 {
		err = builder.Rebuild(context.Background())
	} else {
		_, err = builder.Sweep(context.Background(), startupSweepLimit)
	}
	if err != nil {
		logger.Warn("vector index repair failed", "error", err)
	}

	graph := entities.NewGraph()
	if err := rebuildGraph(context.Background(), graph, entityDAO, captures); err != nil {
		logger.Warn("entity graph rebuild failed", "error", err)
	}

	pipeline := NewPipeline(cfg, db, store, registry,
		sessions, captures, blobs, chunks, entityDAO,
		graph, builder, logger)

	searcher := retrieval.NewSearcher(embedder, vectors, keywords,
		chunks, captures, retrieval.NewLexicalReranker(), cfg.Retrieval, logger)

	return &Server{
		cfg:      cfg,
		logger:   logger.With("component", "daemon"),
		db:       db,
		store:    store,
		sessions: sessions,
		captures: captures,
		chunks:   chunks,
		graph:    graph,
		vectors:  vectors,
		pipeline: pipeline,
		searcher: searcher,
		pid:      pid,
		shutdown: make(chan struct{}),
	}, nil
}

// rebuildGraph replays stored entities into the in-memory correlation
// graph so restarts do not lose host state.
func rebuildGraph(ctx context.Context, graph *entities.Graph, entityDAO database.EntityDAO, captures database.CaptureDAO) error {
	stored, err := entityDAO.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(stored))
	seen := make(map[int64]struct{}, len(stored))
	for _, entity := range stored {
		if _, ok := seen[entity.CaptureID]; ok {
			continue
		}
		seen[entity.CaptureID] = struct{}{}
		ids = append(ids, entity.CaptureID)
	}
	capturesByID, err := captures.GetBatch(ctx, ids)
	if err != nil {
		return err
	}

	graph.Rebuild(stored, func(captureID int64) time.Time {
		if capture, ok := capturesByID[captureID]; ok {
			return capture.Timestamp
		}
		return time.Time{}
	})
	return nil
}

// Run binds the socket and serves requests until ctx is cancelled or a
// shutdown request arrives, then drains and closes everything.
func (s *Server) Run(ctx context.Context) error {
	listener, err := Listen(s.cfg.Daemon.SocketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startedAt = time.Now().UTC()
	// The worker outlives ctx so queued captures still drain during
	// shutdown, bounded by shutdownDrainTimeout.
	s.pipeline.Start(context.WithoutCancel(ctx))

	s.logger.Info("daemon started",
		"socket", listener.Path(),
		"pid", s.pid,
		"version", version.Version)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed", "error", err)
				continue
			}
			s.connWG.Add(1)
			go func() {
				defer s.connWG.Done()
				s.handleConn(ctx, conn)
			}()
		}
	}()

	select {
	case <-ctx.Done():
	case <-s.shutdown:
	}
	return s.close(acceptDone)
}

// Stop asks a running server to shut down. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdown) })
}

// ReloadPatterns rebuilds the pattern registry from cfg and swaps it
// into the pipeline without interrupting intake.
func (s *Server) ReloadPatterns(cfg *config.Config) error {
	registry, err := patterns.NewRegistry(cfg)
	if err != nil {
		return err
	}
	s.pipeline.SwapRegistry(registry)
	s.logger.Info("pattern registry reloaded",
		"entities", len(registry.Entities),
		"tools", len(registry.Tools))
	return nil
}

// close tears the daemon down in dependency order: stop intake, drain
// in-flight work, persist the vector index, checkpoint and close the
// database.
func (s *Server) close(acceptDone chan struct{}) error {
	s.Stop()
	s.listener.Close()
	<-acceptDone
	s.connWG.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownDrainTimeout)
	defer cancel()
	var firstErr error
	if err := s.pipeline.Close(drainCtx); err != nil {
		firstErr = err
		s.logger.Error("pipeline drain failed", "error", err)
	}

	if err := s.vectors.Save(); err != nil && firstErr == nil {
		firstErr = err
		s.logger.Error("vector index save failed", "error", err)
	}
	if err := s.db.Checkpoint(drainCtx); err != nil {
		s.logger.Warn("checkpoint failed", "error", err)
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.logger.Info("daemon stopped", "counters", s.pipeline.Counters())
	return firstErr
}

// handleConn serves one request on one connection, matching the hook's
// connect-send-close usage.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.logger.Debug("bad request frame", "error", err)
		WriteFrame(conn, ErrResponse(err))
		return
	}

	resp := s.dispatch(ctx, &req)
	if err := WriteFrame(conn, resp); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}

// dispatch routes one request to its handler.
func (s *Server) dispatch(ctx context.Context, req *Request) Response {
	switch req.Kind {
	case KindCapture:
		return s.handleCapture(ctx, req.Capture)
	case KindQuery:
		return s.handleQuery(ctx, req.Query)
	case KindStatus:
		return s.handleStatus(ctx)
	case KindShutdown:
		// Respond before stopping so the client sees the ack.
		defer s.Stop()
		return OKResponse(nil)
	default:
		return ErrResponse(types.NewError(types.IPC_READ_FAILED,
			"unknown request kind "+string(req.Kind)))
	}
}

func (s *Server) handleCapture(ctx context.Context, capture *CaptureRequest) Response {
	if capture == nil {
		return ErrResponse(types.NewError(types.IPC_READ_FAILED,
			"capture request without capture body"))
	}

	if capture.SessionID != "" {
		if _, err := s.sessions.Get(ctx, capture.SessionID); err != nil {
			return ErrResponse(err)
		}
	} else {
		session, err := s.activeOrNewSession(ctx)
		if err != nil {
			return ErrResponse(err)
		}
		capture.SessionID = session.ID
	}

	if err := s.pipeline.Submit(capture); err != nil {
		return ErrResponse(err)
	}
	return OKResponse(nil)
}

// activeOrNewSession returns the active session, creating one when a
// capture arrives before any session was started.
func (s *Server) activeOrNewSession(ctx context.Context) (*types.Session, error) {
	active, err := s.sessions.GetActive(ctx)
	if err == nil {
		return active, nil
	}
	if types.CodeOf(err) != types.SESSION_NOT_FOUND {
		return nil, err
	}

	// A paused session suspends intake instead of auto-starting a new
	// session next to it.
	paused, err := s.newestPausedSession(ctx)
	if err != nil {
		return nil, err
	}
	if paused != nil {
		return nil, types.NewError(types.SESSION_PAUSED,
			"session "+paused.Name+" is paused, capture rejected")
	}

	session := types.NewSession("session-" + time.Now().UTC().Format("20060102-150405"))
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session auto-started", "session_id", session.ID, "name", session.Name)
	return session, nil
}

// newestPausedSession returns the most recently started paused session,
// or nil when none is paused.
func (s *Server) newestPausedSession(ctx context.Context) (*types.Session, error) {
	list, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, session := range list {
		if session.Status == types.SessionStatusPaused {
			return session, nil
		}
	}
	return nil, nil
}

func (s *Server) handleQuery(ctx context.Context, query *QueryRequest) Response {
	if query == nil {
		return ErrResponse(types.NewError(types.IPC_READ_FAILED,
			"query request without query body"))
	}
	limit := query.Limit
	if limit <= 0 {
		limit = s.cfg.Retrieval.FinalLimit
	}
	result, err := s.searcher.Search(ctx, query.Text, limit, query.Filters)
	if err != nil {
		return ErrResponse(err)
	}
	return OKResponse(result)
}

func (s *Server) handleStatus(ctx context.Context) Response {
	report := StatusReport{
		Version:       version.Version,
		PID:           s.pid,
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Pipeline:      s.pipeline.Counters(),
		VectorCount:   s.vectors.Len(),
		Graph:         s.graph.Stats(),
		Database:      s.db.Health(ctx),
	}

	if active, err := s.sessions.GetActive(ctx); err == nil {
		report.ActiveSession = active
	}
	if count, err := s.chunks.Count(ctx); err == nil {
		report.ChunkCount = count
	}
	return OKResponse(report)
}

