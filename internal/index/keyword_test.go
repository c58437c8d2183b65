package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/types"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())

	t.Cleanup(func() { db.Close() })
	return db
}

func insertChunks(t *testing.T, db *database.DB, texts ...string) []*types.Chunk {
	t.Helper()
	ctx := context.Background()

	session := types.NewSession("engagement")
	require.NoError(t, database.NewSessionDAO(db).Create(ctx, session))

	capture := &types.Capture{
		SessionID:  session.ID,
		Timestamp:  time.Now().UTC(),
		Command:    "nmap -sV 192.168.1.1",
		OutputHash: "deadbeefdeadbeefdeadbeefdeadbeef",
		CWD:        "/root",
	}
	require.NoError(t, database.NewCaptureDAO(db).Insert(ctx, capture))

	chunks := make([]*types.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &types.Chunk{
			CaptureID:          capture.ID,
			BlobHash:           capture.OutputHash,
			RepresentativeText: text,
			ClusterSize:        1,
		}
	}
	require.NoError(t, database.NewChunkDAO(db).InsertBatch(ctx, chunks))
	return chunks
}

func TestKeywordIndexSearch(t *testing.T) {
	db := newTestDB(t)
	chunks := insertChunks(t, db,
		"22/tcp open ssh OpenSSH 8.2p1",
		"80/tcp open http Apache httpd 2.4.41",
		"vulnerability CVE-2021-44228 log4j remote code execution",
	)

	idx := NewKeywordIndex(db)
	matches, err := idx.Search(context.Background(), "apache", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, chunks[1].ID, matches[0].ChunkID)
	assert.Positive(t, matches[0].Score)
}

func TestKeywordIndexMultiTermAnd(t *testing.T) {
	db := newTestDB(t)
	insertChunks(t, db,
		"22/tcp open ssh",
		"80/tcp open http apache",
	)

	idx := NewKeywordIndex(db)
	matches, err := idx.Search(context.Background(), "open apache", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestKeywordIndexNoMatch(t *testing.T) {
	db := newTestDB(t)
	insertChunks(t, db, "22/tcp open ssh")

	idx := NewKeywordIndex(db)
	matches, err := idx.Search(context.Background(), "postgres", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestKeywordIndexEmptyQuery(t *testing.T) {
	idx := NewKeywordIndex(newTestDB(t))

	matches, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestKeywordIndexOperatorInjection(t *testing.T) {
	db := newTestDB(t)
	insertChunks(t, db, "nothing relevant here")

	idx := NewKeywordIndex(db)

	// FTS5 operators in user input must be treated as literals.
	_, err := idx.Search(context.Background(), `ssh OR "unclosed`, 10)
	assert.NoError(t, err)
}

func TestKeywordIndexRebuild(t *testing.T) {
	db := newTestDB(t)
	insertChunks(t, db, "apache httpd running")

	ctx := context.Background()
	idx := NewKeywordIndex(db)
	require.NoError(t, idx.Rebuild(ctx))
	require.NoError(t, idx.Optimize(ctx))

	matches, err := idx.Search(ctx, "apache", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSanitizeQuery(t *testing.T) {
	assert.Equal(t, `"apache"`, sanitizeQuery("apache"))
	assert.Equal(t, `"open" "apache"`, sanitizeQuery("open apache"))
	assert.Equal(t, `"a""b"`, sanitizeQuery(`a"b`))
	assert.Equal(t, "", sanitizeQuery("  "))
}
