package main

import (
	"fmt"
	"os"

	"github.com/scantrad/scantrad/internal/config"
	"github.com/scantrad/scantrad/internal/logging"
	"github.com/scantrad/scantrad/internal/remote"
	"github.com/scantrad/scantrad/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scantrad",
	Short: "Manga page translation client",
	Long: `scantrad uploads manga pages to a translation backend, tracks each
batch through its pipeline, and keeps results available locally.

State lives under ~/.scantrad (configurable via config.yaml or
SCANTRAD_* environment variables).`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// mustConfig loads configuration or exits.
func mustConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating data directory: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// mustStore opens the local database or exits. Callers own Close.
func mustStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.StorePath(), logging.NewLogger("store", cfg.LogFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening local database: %v\n", err)
		os.Exit(1)
	}
	return st
}

// mustClient builds the backend client carrying the persisted session.
func mustClient(cfg *config.Config, st *store.Store) *remote.Client {
	session, err := remote.NewSession(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error restoring session: %v\n", err)
		os.Exit(1)
	}
	return remote.NewClient(cfg.ServerURL, session, logging.NewLogger("remote", cfg.LogFile))
}
