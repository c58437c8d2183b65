package main

import (
	"context"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/neur0map/yinx/internal/database"
	"github.com/neur0map/yinx/internal/storage/blob"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete unreferenced blobs",
	Long: `Delete blob files whose reference count reached zero and
stray temp files from interrupted writes. Stop the daemon first so no
capture is mid-write during the sweep.`,
	RunE: runGC,
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(filepath.Join(cfg.Storage.DataRoot, "yinx.db"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		return err
	}

	store, err := blob.NewStore(filepath.Join(cfg.Storage.DataRoot, "blobs"),
		cfg.Storage.MaxBlobSize, cfg.Storage.CompressionThreshold)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	blobs := database.NewBlobDAO(db)

	unreferenced, err := blobs.ListUnreferenced(ctx)
	if err != nil {
		return err
	}
	dead := make(map[string]struct{}, len(unreferenced))
	for _, hash := range unreferenced {
		dead[hash] = struct{}{}
	}

	stats, err := store.GC(func(hash string) bool {
		return blobLive(ctx, blobs, dead, hash)
	})
	if err != nil {
		return err
	}

	for _, hash := range unreferenced {
		if err := blobs.Delete(ctx, hash); err != nil {
			return err
		}
	}

	color.Green("gc complete: scanned=%d deleted=%d freed=%d bytes",
		stats.Scanned, stats.Deleted, stats.BytesFreed)
	return nil
}

// blobLive reports whether a file on disk is still referenced. Files
// with no metadata row at all are orphans from interrupted captures.
func blobLive(ctx context.Context, blobs database.BlobDAO, dead map[string]struct{}, hash string) bool {
	if _, gone := dead[hash]; gone {
		return false
	}
	exists, err := blobs.Exists(ctx, hash)
	if err != nil {
		// On a read error keep the file; the next sweep retries.
		return true
	}
	return exists
}
