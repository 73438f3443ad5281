package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"noteflow/api"
	"noteflow/auth"
	"noteflow/cache"
	"noteflow/config"
	"noteflow/upload"
	"noteflow/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, st, err := setup(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	var counts *cache.Counts
	if cfg.Redis.Enabled {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// 计数缓存可选，连不上就直接查库
			log.Warn("redis unavailable, counts served from database", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer rdb.Close()
			counts = cache.New(rdb, cfg.Redis.CountTTL, log)
		}
	}

	deps := api.Deps{
		Store:      st,
		Tokens:     auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL),
		Counts:     counts,
		Log:        log,
		Dev:        cfg.Server.Development(),
		CORSOrigin: cfg.Server.CORSOrigin,
	}

	if cfg.Minio.Enabled {
		uploader, err := newUploader(ctx, cfg.Minio)
		if err != nil {
			log.Warn("minio unavailable, uploads disabled", "endpoint", cfg.Minio.Endpoint, "error", err)
		} else {
			deps.Uploads = uploader
		}
	}

	likeSync := worker.NewLikeSync(counts, st.Likes, st.Notes, cfg.Sync.Interval, log)
	deps.LikeSync = likeSync
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		likeSync.Run(ctx)
	}()

	if cfg.Server.Development() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", "addr", cfg.Server.Addr, "mode", cfg.Server.Mode, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			<-syncDone
			return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	stop()
	<-syncDone
	log.Info("server stopped")
	return nil
}

func newUploader(ctx context.Context, cfg config.MinioConfig) (*upload.MinioUploader, error) {
	u, err := upload.NewMinio(upload.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := u.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return u, nil
}
