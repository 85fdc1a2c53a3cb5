package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/text/language"

	"squid/config"
	"squid/models"
	"squid/ranking"
	"squid/server"
	"squid/storage"
	"squid/tokenizer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	if err := run(logger, *configPath); err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, configPath string) error {
	cfg, err := config.Load(configPath)

	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := storage.Open[models.Sentence](cfg.StorageOptions(), logger, registry)

	if err != nil {
		return err
	}

	tok := tokenizer.NewFrench()
	if cfg.Service.Lang != "fr" {
		tok = tokenizer.New(language.Make(cfg.Service.Lang), nil)
	}

	rank := ranking.NewMap()
	srv := server.New(logger, cfg.Service, store, rank, tok, registry, registry)

	world := store.World()
	for _, sentence := range world {
		srv.Feed(sentence.Tokens)
	}

	logger.Log("msg", "leaderboard seeded", "sentences", len(world), "words", rank.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.StartTTL(ctx); err != nil {
		store.Close()
		return err
	}

	// The snapshot is only needed until TTL tracking has registered it.
	store.ClearWorld()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)

	go func() {
		errc <- httpServer.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	logger.Log("msg", "server started", "addr", httpServer.Addr)

	select {
	case sig := <-sigs:
		logger.Log("msg", "shutting down", "signal", sig)
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "http server failed", "err", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "error shutting down http server", "err", err)
	}

	// Close flushes whatever is still buffered in the memtable.
	if err := store.Close(); err != nil {
		return err
	}

	logger.Log("msg", "exiting...")

	return nil
}
