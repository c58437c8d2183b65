package blob

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"

	"github.com/neur0map/yinx/internal/types"
)

// HashLength is the hex length of a blob hash: a BLAKE3 digest
// truncated to 128 bits.
const HashLength = 32

// WriteResult describes one completed blob write.
type WriteResult struct {
	Hash       string
	Size       int64
	Compressed bool
	// Existed reports that the blob was already present and no bytes
	// were written.
	Existed bool
}

// GCStats summarizes one garbage collection pass.
type GCStats struct {
	Scanned    int64
	Deleted    int64
	BytesFreed int64
}

// Store is a content-addressed blob store. Files live under
// root/<hash[0:2]>/<hash[2:4]>/<hash>, written via a temp file and an
// atomic rename so a reader never observes a partial blob. Payloads at
// or above the compression threshold are stored zstd-compressed.
type Store struct {
	root                 string
	maxBlobSize          int64
	compressionThreshold int

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewStore creates a blob store rooted at root, creating the directory
// if needed.
func NewStore(root string, maxBlobSize int64, compressionThreshold int) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, types.WrapError(types.BLOB_WRITE_FAILED,
			"failed to create blob root", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, types.WrapError(types.BLOB_WRITE_FAILED,
			"failed to create zstd encoder", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, types.WrapError(types.BLOB_READ_FAILED,
			"failed to create zstd decoder", err)
	}

	return &Store{
		root:                 root,
		maxBlobSize:          maxBlobSize,
		compressionThreshold: compressionThreshold,
		encoder:              encoder,
		decoder:              decoder,
	}, nil
}

// Hash returns the content hash for data.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:HashLength/2])
}

// Write stores data and returns its hash. Writing bytes that already
// exist is a no-op that reports the existing hash.
func (s *Store) Write(data []byte) (WriteResult, error) {
	if int64(len(data)) > s.maxBlobSize {
		return WriteResult{}, types.NewError(types.BLOB_TOO_LARGE,
			fmt.Sprintf("blob size %d exceeds limit %d", len(data), s.maxBlobSize))
	}

	hash := Hash(data)
	path := s.Path(hash)

	if _, err := os.Stat(path); err == nil {
		return WriteResult{
			Hash:    hash,
			Size:    int64(len(data)),
			Existed: true,
		}, nil
	}

	payload := data
	compressed := false
	if len(data) >= s.compressionThreshold {
		payload = s.encoder.EncodeAll(data, nil)
		compressed = true
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteResult{}, types.NewRetryableError(types.BLOB_WRITE_FAILED,
			"failed to create shard directory: "+err.Error())
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return WriteResult{}, types.NewRetryableError(types.BLOB_WRITE_FAILED,
			"failed to write blob temp file: "+err.Error())
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return WriteResult{}, types.NewRetryableError(types.BLOB_WRITE_FAILED,
			"failed to finalize blob: "+err.Error())
	}

	return WriteResult{
		Hash:       hash,
		Size:       int64(len(data)),
		Compressed: compressed,
	}, nil
}

// Read returns the decompressed bytes for hash. The stored payload is
// treated as zstd first; bytes that do not decode as zstd are returned
// as-is, so blobs below the compression threshold round-trip unchanged.
func (s *Store) Read(hash string) ([]byte, error) {
	raw, err := os.ReadFile(s.Path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewError(types.BLOB_NOT_FOUND, "blob "+hash+" not found")
		}
		return nil, types.WrapError(types.BLOB_READ_FAILED, "failed to read blob "+hash, err)
	}
	if len(raw) == 0 {
		return raw, nil
	}

	if decoded, derr := s.decoder.DecodeAll(raw, nil); derr == nil {
		return decoded, nil
	}
	return raw, nil
}

// Verify re-hashes the stored content and reports corruption.
func (s *Store) Verify(hash string) error {
	data, err := s.Read(hash)
	if err != nil {
		return err
	}
	if actual := Hash(data); actual != hash {
		return types.NewError(types.BLOB_CORRUPTED,
			fmt.Sprintf("blob %s content hashes to %s", hash, actual))
	}
	return nil
}

// Exists reports whether a blob with the given hash is stored.
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(s.Path(hash))
	return err == nil
}

// Delete removes the blob file. Deleting a missing blob is not an
// error. Callers are responsible for checking reference counts first.
func (s *Store) Delete(hash string) error {
	err := os.Remove(s.Path(hash))
	if err != nil && !os.IsNotExist(err) {
		return types.WrapError(types.BLOB_WRITE_FAILED, "failed to delete blob "+hash, err)
	}
	return nil
}

// Path returns the sharded filesystem path for hash.
func (s *Store) Path(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(s.root, hash)
	}
	return filepath.Join(s.root, hash[0:2], hash[2:4], hash)
}

// GC walks the store and deletes every blob whose hash is not reported
// live by the callback. Returns statistics for the pass.
func (s *Store) GC(live func(hash string) bool) (GCStats, error) {
	var stats GCStats

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		name := filepath.Base(path)
		if len(name) != HashLength {
			// Stray temp files from interrupted writes are collected too.
			if filepath.Ext(name) == ".tmp" {
				if rmErr := os.Remove(path); rmErr == nil {
					stats.Deleted++
					stats.BytesFreed += info.Size()
				}
			}
			return nil
		}

		stats.Scanned++
		if live(name) {
			return nil
		}

		if rmErr := os.Remove(path); rmErr != nil {
			return rmErr
		}
		stats.Deleted++
		stats.BytesFreed += info.Size()
		return nil
	})
	if err != nil {
		return stats, types.WrapError(types.BLOB_WRITE_FAILED, "garbage collection failed", err)
	}

	return stats, nil
}
