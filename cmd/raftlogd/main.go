// Command raftlogd runs a standalone WAL process: it opens a data
// directory as a wal.WAL, joins a gossip cluster if configured, and serves
// until it receives a termination signal.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ttaaoo/raftlog/internal/agent"
	"github.com/ttaaoo/raftlog/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to raftlogd config YAML")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "raftlogd").Logger()

	if *configPath == "" {
		logger.Fatal().Msg("missing required -config flag")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	a, err := agent.New(agent.Config{
		NodeName:        cfg.NodeName,
		DataDir:         cfg.DataDir,
		BindAddr:        cfg.BindAddr,
		StartJoinAddrs:  cfg.StartJoinAddrs,
		SegmentCapacity: cfg.SegmentCapacity,
		SyncInterval:    cfg.SyncInterval,
		ACLModelFile:    cfg.ACLModelFile,
		ACLPolicyFile:   cfg.ACLPolicyFile,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start agent")
	}

	logger.Info().Str("data_dir", cfg.DataDir).Msg("raftlogd started")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info().Msg("shutting down")
	if err := a.Shutdown(); err != nil {
		logger.Fatal().Err(err).Msg("shutdown failed")
	}
}
