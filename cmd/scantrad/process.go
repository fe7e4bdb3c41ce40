package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/scantrad/scantrad/internal/blob"
	"github.com/scantrad/scantrad/internal/engine"
	"github.com/scantrad/scantrad/internal/logging"
	"github.com/scantrad/scantrad/internal/schema"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Run pages through the local simulated pipeline",
	Long: `Create a batch from the given files and translate it with the local
simulated pipeline, no backend required. Useful offline and for
demoing the lifecycle. Results persist in the local database.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		blobs := blob.NewStore(cfg.DataDir)
		engineCfg := engine.DefaultConfig()
		engineCfg.StepDelay = cfg.StepDelay
		engineCfg.Logger = logging.NewLogger("engine", cfg.LogFile)

		eng, err := engine.New(st, blobs, engineCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		files := make([]engine.FileInput, 0, len(args))
		handles := make([]*os.File, 0, len(args))
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", path, err)
				os.Exit(1)
			}
			handles = append(handles, f)
			files = append(files, engine.FileInput{Filename: filepath.Base(path), Data: f})
		}

		batchID, err := eng.CreateBatch(files)
		for _, f := range handles {
			f.Close()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating batch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created batch %s (%d pages)\n", batchID, len(files))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = eng.ProcessBatch(ctx, batchID, func(pageID string, progress int, status schema.PageStatus) {
			if status == schema.StatusDone {
				fmt.Printf("  %s: done\n", pageID)
				return
			}
			fmt.Printf("  %s: %d%%\n", pageID, progress)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error processing batch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Batch %s complete\n", batchID)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
