// Package main provides the entry point for the kvs server: it binds a
// store directory to an engine and serves it over the wire protocol.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jassi-singh/kvs/internal/config"
	"github.com/jassi-singh/kvs/internal/engine"
	"github.com/jassi-singh/kvs/internal/server"
)

func main() {
	slogHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(slogHandler)
	slog.SetDefault(logger)

	slog.Info("main: loading configuration")
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("main: failed to load configuration", "error", err)
		log.Fatalf("failed to load config: %v", err)
	}

	addr := flag.String("addr", cfg.ADDR, "listen address")
	engineName := flag.String("engine", cfg.ENGINE, "storage engine (kvs|sled)")
	flag.Parse()

	dir := cfg.DATA_DIR
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			log.Fatalf("failed to resolve working directory: %v", err)
		}
	}

	slog.Info("main: kvs-server starting",
		"version", "0.1.0",
		"addr", *addr,
		"engine", *engineName,
		"dir", dir,
	)

	if err := server.EnsureEngineMarker(dir, *engineName); err != nil {
		slog.Error("main: engine marker mismatch", "error", err)
		log.Fatalf("engine mismatch: %v", err)
	}

	eng, err := openEngine(*engineName, dir, cfg.COMPACT_BOUND)
	if err != nil {
		slog.Error("main: failed to open engine", "error", err)
		log.Fatalf("failed to open engine: %v", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("main: error closing engine", "error", err)
		}
	}()

	srv := server.New(eng, *addr)
	if err := srv.Serve(); err != nil {
		slog.Error("main: server exited", "error", err)
		log.Fatalf("server error: %v", err)
	}
}

// openEngine instantiates the configured backend over dir.
func openEngine(name, dir string, compactBound uint64) (engine.Engine, error) {
	switch name {
	case "sled":
		return engine.OpenBolt(filepath.Join(dir, "store.bolt"))
	default:
		return engine.Open(dir, compactBound)
	}
}
