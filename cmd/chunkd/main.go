package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shufflekit/chunknet/pkg/chunk"
)

func main() {
	var (
		addr       = pflag.String("addr", ":7700", "listen address")
		dir        = pflag.String("dir", ".", "directory whose regular files are registered as streams")
		chunkSize  = pflag.Int64("chunk-size", 1<<20, "chunk size in bytes")
		configPath = pflag.String("config", "", "optional YAML config file")
		dev        = pflag.Bool("dev", false, "development logging")
	)
	pflag.Parse()

	logger, err := newLogger(*dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := chunk.DefaultConfig()
	if *configPath != "" {
		cfg, err = chunk.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}

	registry := chunk.NewRegistry(logger)
	if err := registerDir(registry, *dir, *chunkSize, logger); err != nil {
		logger.Fatal("register streams", zap.Error(err))
	}
	if registry.StreamCount() == 0 {
		logger.Warn("no streams registered", zap.String("dir", *dir))
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", *addr), zap.Error(err))
	}

	srv := chunk.NewServer(cfg, registry, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, chunk.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("shut down")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// registerDir registers every regular file directly under dir as one stream,
// in name order.
func registerDir(registry *chunk.Registry, dir string, chunkSize int64, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read dir %s", dir)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		p, err := chunk.NewFileProvider(path, chunkSize)
		if err != nil {
			return err
		}
		id := registry.Register(p)
		logger.Info("registered stream",
			zap.Int64("streamID", id),
			zap.String("file", path),
			zap.Int64("size", p.Size()),
			zap.Int32("chunks", p.ChunkCount()))
	}
	return nil
}
