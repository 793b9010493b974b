package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/batch"
	"github.com/sells-group/contact-resolver/internal/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Clear(ctx)
		if err != nil {
			return eris.Wrap(err, "cache clear")
		}
		zap.S().Infow("cache cleared", "removed", n)
		return nil
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired cached records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Sweep(ctx)
		if err != nil {
			return eris.Wrap(err, "cache sweep")
		}
		zap.S().Infow("cache swept", "removed", n)
		return nil
	},
}

// batchPutter is implemented by both cache backends. It is separate
// from cache.Cache so callers that only read and write single records
// do not have to provide bulk loading.
type batchPutter interface {
	PutBatch(ctx context.Context, recs []*model.ContactRecord) (int64, error)
}

var cacheImportCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Bulk-load records from a batch run snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read snapshot %s", args[0])
		}
		var snap batch.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return eris.Wrapf(err, "parse snapshot %s", args[0])
		}

		store, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		bp, ok := store.(batchPutter)
		if !ok {
			return eris.New("cache driver does not support bulk import")
		}

		n, err := bp.PutBatch(ctx, snap.Records)
		if err != nil {
			return eris.Wrap(err, "cache import")
		}
		zap.S().Infow("cache import finished",
			"run_id", snap.RunID,
			"snapshot_records", len(snap.Records),
			"imported", n,
		)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	cacheCmd.AddCommand(cacheImportCmd)
	rootCmd.AddCommand(cacheCmd)
}
