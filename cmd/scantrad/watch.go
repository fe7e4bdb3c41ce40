package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scantrad/scantrad/internal/dropzone"
	"github.com/scantrad/scantrad/internal/logging"
	"github.com/spf13/cobra"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:   "watch --dir <directory>",
	Short: "Auto-upload pages dropped into a directory",
	Long: `Watch a directory and upload every image that appears in it. Files
that arrive together are uploaded as one batch, after a short settle
delay. Runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		client := mustClient(cfg, st)
		if !client.Session().LoggedIn() {
			fmt.Fprintf(os.Stderr, "Error: not logged in (run 'scantrad login')\n")
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dzCfg := dropzone.DefaultConfig(watchDir)
		dzCfg.DebounceInterval = cfg.WatchDebounce
		dzCfg.Logger = logging.NewLogger("dropzone", cfg.LogFile)

		watcher, err := dropzone.New(dzCfg, func(paths []string) {
			pages, err := readPageUploads(paths)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading dropped files: %v\n", err)
				return
			}
			batchID, err := client.SubmitBatch(ctx, pages)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error submitting batch: %v\n", err)
				return
			}
			fmt.Printf("Submitted batch %s (%d pages)\n", batchID, len(pages))
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating watcher: %v\n", err)
			os.Exit(1)
		}
		if err := watcher.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting watcher: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Watching %s (Ctrl+C to stop)\n", watchDir)
		<-ctx.Done()
		if err := watcher.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping watcher: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory to watch (required)")
	watchCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(watchCmd)
}
