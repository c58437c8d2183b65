package types

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a recording session.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusPaused  SessionStatus = "paused"
	SessionStatusStopped SessionStatus = "stopped"
)

// IsValid checks if the SessionStatus is a known value.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusActive, SessionStatusPaused, SessionStatusStopped:
		return true
	}
	return false
}

// Session is one interactive shell recording. A stopped session is never
// resurrected; a new start creates a new session.
type Session struct {
	ID           ID            `json:"id"`
	Name         string        `json:"name"`
	StartedAt    time.Time     `json:"started_at"`
	StoppedAt    *time.Time    `json:"stopped_at,omitempty"`
	Status       SessionStatus `json:"status"`
	CaptureCount int64         `json:"capture_count"`
	BlobCount    int64         `json:"blob_count"`
}

// NewSession creates an active session with the given name.
func NewSession(name string) *Session {
	return &Session{
		ID:        NewID(),
		Name:      name,
		StartedAt: time.Now().UTC(),
		Status:    SessionStatusActive,
	}
}

// Stop marks the session stopped. Stopping is terminal.
func (s *Session) Stop() {
	now := time.Now().UTC()
	s.StoppedAt = &now
	s.Status = SessionStatusStopped
}

// Capture is a single executed command and its output. Immutable once
// written; OutputHash references the blob holding the raw output bytes.
type Capture struct {
	ID         int64     `json:"id"`
	SessionID  ID        `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Command    string    `json:"command"`
	OutputHash string    `json:"output_hash"`
	Tool       string    `json:"tool,omitempty"`
	ExitCode   int       `json:"exit_code"`
	CWD        string    `json:"cwd"`
}

// Blob is the metadata row for one content-addressed output file.
// RefCount is the number of captures (or other holders) referring to
// this hash; the file may be deleted only when it reaches zero.
type Blob struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	RefCount   int64     `json:"ref_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkMetadata records how a chunk was produced by the reducer.
type ChunkMetadata struct {
	Pattern   string             `json:"pattern,omitempty"`
	Members   int                `json:"members,omitempty"`
	Singleton bool               `json:"singleton,omitempty"`
	Split     bool               `json:"split,omitempty"`
	Scores    map[string]float64 `json:"scores,omitempty"`
}

// Chunk is one reducer output: a representative line for a cluster of
// similar lines in one capture's output. Its RepresentativeText is the
// unit of indexing and search.
type Chunk struct {
	ID                 int64         `json:"id"`
	CaptureID          int64         `json:"capture_id"`
	BlobHash           string        `json:"blob_hash"`
	RepresentativeText string        `json:"representative_text"`
	ClusterSize        int           `json:"cluster_size"`
	Metadata           ChunkMetadata `json:"metadata"`
}

// MetadataJSON renders the chunk metadata for storage.
func (c *Chunk) MetadataJSON() (string, error) {
	b, err := json.Marshal(c.Metadata)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Embedding is the stored vector for a chunk. A chunk has at most one
// embedding per model; insertion is idempotent on (chunk_id, model).
type Embedding struct {
	ChunkID   int64     `json:"chunk_id"`
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity is a structured value matched by a named pattern. TypeName is
// an open string registered in configuration, not a closed enum, so new
// entity kinds require no code change.
type Entity struct {
	ID         int64   `json:"id"`
	CaptureID  int64   `json:"capture_id"`
	TypeName   string  `json:"type"`
	Value      string  `json:"value"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
	Redact     bool    `json:"redact"`
}
