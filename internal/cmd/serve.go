package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/vaultdrop/vaultdrop/internal/config"
	"github.com/vaultdrop/vaultdrop/internal/db"
	"github.com/vaultdrop/vaultdrop/internal/disk"
	"github.com/vaultdrop/vaultdrop/internal/eviction"
	"github.com/vaultdrop/vaultdrop/internal/hub"
	"github.com/vaultdrop/vaultdrop/internal/logger"
	"github.com/vaultdrop/vaultdrop/internal/server"
	"github.com/vaultdrop/vaultdrop/internal/session"
	"github.com/vaultdrop/vaultdrop/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		log := logger.New(cfg.LogLevel)

		// Storage must come up before anything is served; there is nothing
		// useful to do without it.
		diskStore := disk.NewStore(cfg.StorageDir)
		if err := diskStore.Initialize(); err != nil {
			log.WithError(err).Fatal("storage initialization failed")
		}
		gdb, err := db.Open(filepath.Join(cfg.StorageDir, "metadata.db"))
		if err != nil {
			log.WithError(err).Fatal("metadata database initialization failed")
		}

		contents := store.NewContentStore(gdb)
		chunks := store.NewChunkStore(gdb)
		registry := session.NewRegistry(cfg.SessionTimeout, log)
		evictor := eviction.NewManager(contents, diskStore, cfg.MaxItemsPerSession, cfg.MaxPinnedPerSession, cfg.CleanupInterval, log)
		h := hub.New(registry, contents, chunks, diskStore, evictor, hub.Options{
			JoinPageSize:       cfg.JoinPageSize,
			LargeFileThreshold: cfg.LargeFileThreshold,
		}, log)
		registry.OnExpire(h.DropPending)
		srv := server.New(cfg.ListenAddr, h, registry, contents, chunks, diskStore, log)

		log.WithField("storage", cfg.StorageDir).
			WithField("large_file_threshold", humanize.IBytes(uint64(cfg.LargeFileThreshold))).
			Info("vaultdrop starting")

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go registry.Run(ctx)
		go evictor.Run(ctx)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("shutting down")
		case err := <-errCh:
			if err != nil {
				log.WithError(err).Error("server failed")
			}
		}

		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	},
}
