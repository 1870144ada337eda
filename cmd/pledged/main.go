package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pledgechain/config"
	"pledgechain/core"
	"pledgechain/observability/logging"
	"pledgechain/rpc"
	"pledgechain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PLEDGE_ENV"))
	logger := logging.Setup("pledged", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, cfg, logger)
	if err != nil {
		logger.Error("Failed to build node", slog.Any("error", err))
		os.Exit(1)
	}

	if strings.TrimSpace(cfg.SwapVenueAddress) != "" {
		venueAddr, err := config.ParseAddress(cfg.SwapVenueAddress)
		if err != nil {
			logger.Error("Failed to parse swap venue address", slog.Any("error", err))
			os.Exit(1)
		}
		node.AttachSwapVenue(uint64(cfg.SwapFeeBasisPoints), venueAddr)
		logger.Info("swap venue attached", slog.String("address", cfg.SwapVenueAddress))
	} else {
		logger.Warn("no swap venue configured; pool resolution is disabled until one is set")
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(node, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logging.HTTPErrorLog(logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", slog.String("address", cfg.ListenAddress))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown incomplete", slog.Any("error", err))
	}
}
