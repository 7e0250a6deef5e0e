package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/shufflekit/chunknet/pkg/chunk"
	"github.com/shufflekit/chunknet/pkg/chunk/buf"
)

func main() {
	var (
		addr       = pflag.String("addr", "127.0.0.1:7700", "server address")
		streamID   = pflag.Int64("stream", 1, "stream id to fetch from")
		chunks     = pflag.String("chunks", "0", "comma-separated chunk indexes")
		outDir     = pflag.String("out", ".", "output directory")
		configPath = pflag.String("config", "", "optional YAML config file")
	)
	pflag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	indexes, err := parseChunkList(*chunks)
	if err != nil {
		logger.Fatal("parse chunk list", zap.Error(err))
	}

	cfg := chunk.DefaultConfig()
	if *configPath != "" {
		cfg, err = chunk.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}

	client, err := chunk.Dial(*addr, cfg, logger)
	if err != nil {
		logger.Fatal("connect", zap.String("addr", *addr), zap.Error(err))
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	wg.Add(len(indexes))
	for _, idx := range indexes {
		client.FetchChunk(*streamID, idx, chunk.RangeHint{}, chunk.ChunkCallbackFuncs{
			Success: func(chunkIndex int32, b buf.Buffer) {
				defer wg.Done()
				defer b.Release()
				if err := writeChunk(*outDir, *streamID, chunkIndex, b); err != nil {
					logger.Error("write chunk", zap.Int32("chunkIndex", chunkIndex), zap.Error(err))
					failed.Inc()
					return
				}
				logger.Info("fetched chunk",
					zap.Int32("chunkIndex", chunkIndex),
					zap.Int64("bytes", b.Size()))
			},
			Failure: func(chunkIndex int32, err error) {
				defer wg.Done()
				logger.Error("fetch failed", zap.Int32("chunkIndex", chunkIndex), zap.Error(err))
				failed.Inc()
			},
		})
	}
	wg.Wait()

	read, written := client.Stats()
	logger.Info("done",
		zap.Int("chunks", len(indexes)),
		zap.Int32("failed", failed.Load()),
		zap.Uint64("bytesRead", read),
		zap.Uint64("bytesWritten", written))

	_ = client.Close()
	_ = logger.Sync()
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

func writeChunk(dir string, streamID int64, chunkIndex int32, b buf.Buffer) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	name := fmt.Sprintf("stream%d-chunk%d.bin", streamID, chunkIndex)
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

func parseChunkList(s string) ([]int32, error) {
	parts := strings.Split(s, ",")
	indexes := make([]int32, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "chunk index %q", part)
		}
		indexes = append(indexes, int32(n))
	}
	if len(indexes) == 0 {
		return nil, errors.New("no chunk indexes given")
	}
	return indexes, nil
}
