package daemon

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/embedding"
	"github.com/neur0map/yinx/internal/entities"
	"github.com/neur0map/yinx/internal/index"
	"github.com/neur0map/yinx/internal/patterns"
	"github.com/neur0map/yinx/internal/storage/blob"
	"github.com/neur0map/yinx/internal/types"
)

type pipelineFixture struct {
	pipeline *Pipeline
	db       *database.DB
	sessions database.SessionDAO
	captures database.CaptureDAO
	blobs    database.BlobDAO
	chunks   database.ChunkDAO
	entities database.EntityDAO
	graph    *entities.Graph
	session  *types.Session
}

func newPipelineFixture(t *testing.T, bufferSize int) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.DataRoot = dir
	cfg.Capture.BufferSize = bufferSize
	cfg.Embedding.Provider = "mock"

	registry, err := patterns.NewRegistry(cfg)
	require.NoError(t, err)

	db, err := database.Open(filepath.Join(dir, "yinx.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	store, err := blob.NewStore(filepath.Join(dir, "blobs"),
		cfg.Storage.MaxBlobSize, cfg.Storage.CompressionThreshold)
	require.NoError(t, err)

	embedder := embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	vectors := index.NewVectorIndex(filepath.Join(dir, "index"), cfg.Indexing)

	sessions := database.NewSessionDAO(db)
	captures := database.NewCaptureDAO(db)
	blobDAO := database.NewBlobDAO(db)
	chunks := database.NewChunkDAO(db)
	entityDAO := database.NewEntityDAO(db)
	embeddings := database.NewEmbeddingDAO(db)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := index.NewBuilder(chunks, embeddings, embedder, vectors, cfg.Embedding, logger)
	graph := entities.NewGraph()

	pipeline := NewPipeline(cfg, db, store, registry,
		sessions, captures, blobDAO, chunks, entityDAO, graph, builder, logger)

	session := types.NewSession("pipeline-test")
	require.NoError(t, sessions.Create(context.Background(), session))

	return &pipelineFixture{
		pipeline: pipeline,
		db:       db,
		sessions: sessions,
		captures: captures,
		blobs:    blobDAO,
		chunks:   chunks,
		entities: entityDAO,
		graph:    graph,
		session:  session,
	}
}

const nmapOutput = `Nmap scan report for 10.0.0.5
22/tcp   open  ssh     OpenSSH/8.9
80/tcp   open  http    Apache/2.4.52
443/tcp  open  https   Apache/2.4.52
Service detection performed.`

func TestPipelineProcessesCapture(t *testing.T) {
	f := newPipelineFixture(t, 16)
	ctx := context.Background()

	f.pipeline.Start(ctx)
	require.NoError(t, f.pipeline.Submit(&CaptureRequest{
		SessionID: f.session.ID,
		Timestamp: time.Now().Unix(),
		Command:   "nmap -sV 10.0.0.5",
		Output:    nmapOutput,
		ExitCode:  0,
		CWD:       "/root",
	}))

	require.Eventually(t, func() bool {
		return f.pipeline.Counters().Processed == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.pipeline.Close(ctx))

	counters := f.pipeline.Counters()
	assert.EqualValues(t, 1, counters.Submitted)
	assert.Zero(t, counters.Failed)

	captures, err := f.captures.ListBySession(ctx, f.session.ID, 10)
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, "nmap", captures[0].Tool)
	assert.NotEmpty(t, captures[0].OutputHash)

	exists, err := f.blobs.Exists(ctx, captures[0].OutputHash)
	require.NoError(t, err)
	assert.True(t, exists)

	chunks, err := f.chunks.ListByCapture(ctx, captures[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)

	extracted, err := f.entities.ListByCapture(ctx, captures[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, extracted)

	host, ok := f.graph.Host("10.0.0.5")
	require.True(t, ok)
	assert.NotNil(t, host)

	session, err := f.sessions.Get(ctx, f.session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, session.CaptureCount)
	assert.EqualValues(t, 1, session.BlobCount)
}

func TestPipelineSharedBlobIncrementsRefCount(t *testing.T) {
	f := newPipelineFixture(t, 16)
	ctx := context.Background()
	f.pipeline.Start(ctx)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.pipeline.Submit(&CaptureRequest{
			SessionID: f.session.ID,
			Timestamp: time.Now().Unix(),
			Command:   "cat /etc/passwd",
			Output:    "root:x:0:0:root:/root:/bin/bash",
		}))
	}
	require.Eventually(t, func() bool {
		return f.pipeline.Counters().Processed == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.pipeline.Close(ctx))

	captures, err := f.captures.ListBySession(ctx, f.session.ID, 10)
	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, captures[0].OutputHash, captures[1].OutputHash)

	stored, err := f.blobs.Get(ctx, captures[0].OutputHash)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.RefCount)

	// Two captures share one blob, so the session gained one.
	session, err := f.sessions.Get(ctx, f.session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, session.CaptureCount)
	assert.EqualValues(t, 1, session.BlobCount)
}

func TestPipelineBackpressure(t *testing.T) {
	f := newPipelineFixture(t, 1)
	// Not started: the buffer fills and stays full.

	req := &CaptureRequest{SessionID: f.session.ID, Command: "ls", Output: "a"}
	require.NoError(t, f.pipeline.Submit(req))

	err := f.pipeline.Submit(req)
	require.Error(t, err)
	assert.Equal(t, types.PIPELINE_BACKPRESSURE, types.CodeOf(err))
	assert.True(t, types.IsRetryable(err))
	assert.EqualValues(t, 1, f.pipeline.Counters().Dropped)
}

func TestPipelineSubmitAfterClose(t *testing.T) {
	f := newPipelineFixture(t, 4)
	ctx := context.Background()
	f.pipeline.Start(ctx)
	require.NoError(t, f.pipeline.Close(ctx))

	err := f.pipeline.Submit(&CaptureRequest{SessionID: f.session.ID, Command: "ls"})
	require.Error(t, err)
	assert.Equal(t, types.PIPELINE_CLOSED, types.CodeOf(err))
}

func TestPipelineFailureKeepsWorkerAlive(t *testing.T) {
	f := newPipelineFixture(t, 16)
	ctx := context.Background()
	f.pipeline.Start(ctx)

	// Unknown session violates the captures foreign key.
	require.NoError(t, f.pipeline.Submit(&CaptureRequest{
		SessionID: types.NewID(),
		Command:   "ls",
		Output:    "boom",
	}))
	require.NoError(t, f.pipeline.Submit(&CaptureRequest{
		SessionID: f.session.ID,
		Timestamp: time.Now().Unix(),
		Command:   "whoami",
		Output:    "root",
	}))

	require.Eventually(t, func() bool {
		c := f.pipeline.Counters()
		return c.Processed == 1 && c.Failed == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.pipeline.Close(ctx))
}

func TestPipelineSwapRegistry(t *testing.T) {
	f := newPipelineFixture(t, 16)
	ctx := context.Background()
	f.pipeline.Start(ctx)

	require.NoError(t, f.pipeline.Submit(&CaptureRequest{
		SessionID: f.session.ID,
		Timestamp: time.Now().Unix(),
		Command:   "customscan --fast 10.0.0.9",
		Output:    "customscan: 1 host up",
	}))
	require.Eventually(t, func() bool {
		return f.pipeline.Counters().Processed == 1
	}, 5*time.Second, 10*time.Millisecond)

	cfg := config.DefaultConfig()
	cfg.Tools = append(cfg.Tools, config.ToolPatternConfig{
		Name:            "customscan",
		CommandPatterns: []string{`^customscan\b`},
	})
	swapped, err := patterns.NewRegistry(cfg)
	require.NoError(t, err)
	f.pipeline.SwapRegistry(swapped)

	require.NoError(t, f.pipeline.Submit(&CaptureRequest{
		SessionID: f.session.ID,
		Timestamp: time.Now().Unix(),
		Command:   "customscan --fast 10.0.0.9",
		Output:    "customscan: 1 host up",
	}))
	require.Eventually(t, func() bool {
		return f.pipeline.Counters().Processed == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.pipeline.Close(ctx))

	captures, err := f.captures.ListBySession(ctx, f.session.ID, 10)
	require.NoError(t, err)
	require.Len(t, captures, 2)

	tools := []string{captures[0].Tool, captures[1].Tool}
	assert.Contains(t, tools, "customscan")
	assert.Contains(t, tools, "")
}

func TestPipelineReleaseSession(t *testing.T) {
	f := newPipelineFixture(t, 4)

	first := f.pipeline.sessionFilter(f.session.ID)
	assert.Same(t, first, f.pipeline.sessionFilter(f.session.ID))

	f.pipeline.ReleaseSession(f.session.ID)
	assert.NotSame(t, first, f.pipeline.sessionFilter(f.session.ID))
}
