// Command reaper drains the orphan queue, deleting objects that were stored
// without a committed meme record.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/memelibre/server/internal/config"
	"github.com/memelibre/server/internal/logging"
	"github.com/memelibre/server/internal/orphan"
	"github.com/memelibre/server/internal/storage"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "reaper",
		Short:        "Garbage-collect orphaned meme objects",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCommand(), newStatusCommand())
	return root
}

func newRunCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Delete up to --limit queued orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			cfg, log, queue, err := setup()
			if err != nil {
				return err
			}
			defer queue.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := storage.New(ctx, cfg.StorageDriver, storageOptions(cfg), log)
			if err != nil {
				return fmt.Errorf("object storage init failed: %w", err)
			}

			res, err := orphan.NewReaper(queue, store, log, nil).Run(ctx, limit)
			entry := log.WithFields(logrus.Fields{"deleted": res.Deleted, "requeued": res.Requeued})
			if err != nil {
				entry.WithError(err).Error("reaper pass aborted")
				return err
			}
			entry.Info("reaper pass complete")
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum number of keys to process")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the number of queued orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, queue, err := setup()
			if err != nil {
				return err
			}
			defer queue.Close()

			n, err := queue.Len(cmd.Context())
			if err != nil {
				return fmt.Errorf("read queue length: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func setup() (*config.Config, *logrus.Logger, *orphan.RedisQueue, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.RedisURL == "" {
		return nil, nil, nil, fmt.Errorf("REDIS_URL is required")
	}
	log := logging.New(cfg.AppEnv, cfg.LogLevel)

	queue, err := orphan.NewRedisQueue(cfg.RedisURL, cfg.OrphanQueueKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("orphan queue init failed: %w", err)
	}
	if err := queue.Ping(context.Background()); err != nil {
		_ = queue.Close()
		return nil, nil, nil, fmt.Errorf("orphan queue unreachable: %w", err)
	}
	return cfg, log, queue, nil
}

func storageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Endpoint:   cfg.StorageEndpoint,
		Region:     cfg.StorageRegion,
		AccessKey:  cfg.StorageAccessKey,
		SecretKey:  cfg.StorageSecretKey,
		Bucket:     cfg.StorageBucket,
		UseSSL:     cfg.StorageUseSSL,
		PublicBase: cfg.StoragePublicBase,
		PublicRead: cfg.StoragePublicRead,
	}
}
