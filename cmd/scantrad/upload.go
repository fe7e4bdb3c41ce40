package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scantrad/scantrad/internal/config"
	"github.com/scantrad/scantrad/internal/live"
	"github.com/scantrad/scantrad/internal/logging"
	"github.com/scantrad/scantrad/internal/remote"
	"github.com/scantrad/scantrad/internal/schema"
	"github.com/spf13/cobra"
)

var uploadWait bool

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload pages to the translation backend",
	Long: `Upload one or more page images as a single batch. By default the
command then follows the batch until every page is translated, using
live-update hints from the backend to refresh early.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		client := mustClient(cfg, st)
		pages, err := readPageUploads(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading files: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		batchID, err := client.SubmitBatch(ctx, pages)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error submitting batch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Submitted batch %s (%d pages)\n", batchID, len(pages))

		if !uploadWait {
			return
		}
		if err := followBatch(ctx, client, cfg, batchID); err != nil {
			fmt.Fprintf(os.Stderr, "Error following batch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Batch %s complete\n", batchID)
	},
}

// readPageUploads loads each path and encodes it for the upload request.
func readPageUploads(paths []string) ([]schema.PageUpload, error) {
	pages := make([]schema.PageUpload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		pages = append(pages, schema.PageUpload{
			Filename:    filepath.Base(path),
			ImageBase64: base64.StdEncoding.EncodeToString(data),
		})
	}
	return pages, nil
}

// followBatch polls batch status until every page is done, refreshing
// early on live-update hints.
func followBatch(ctx context.Context, client *remote.Client, cfg *config.Config, batchID string) error {
	hints := make(chan struct{}, 1)

	channel := live.NewChannel(live.Config{
		URL:            cfg.WSURL,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logging.NewLogger("live", cfg.LogFile),
	})
	channel.OnMessage(func(live.Message) {
		client.InvalidateBatch(batchID)
		select {
		case hints <- struct{}{}:
		default:
		}
	})
	channel.Connect()
	defer channel.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	seen := make(map[string]schema.PageStatus)
	for {
		client.InvalidateBatch(batchID)
		pages, err := client.FetchBatchStatus(ctx, batchID)
		if err != nil {
			return err
		}

		for _, p := range pages {
			if seen[p.PageID] != p.Status {
				seen[p.PageID] = p.Status
				fmt.Printf("  %s (%s): %s\n", p.PageID, p.Filename, p.Status)
			}
		}

		if remote.ReconcileBatch(batchID, pages, time.Now()).Status == schema.BatchDone {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-hints:
		}
	}
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadWait, "wait", true, "follow the batch until translation finishes")
	rootCmd.AddCommand(uploadCmd)
}
