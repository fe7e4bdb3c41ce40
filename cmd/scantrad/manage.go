package main

import (
	"fmt"
	"os"

	"github.com/scantrad/scantrad/internal/blob"
	"github.com/scantrad/scantrad/internal/engine"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <batchId>",
	Short: "Delete a local batch and its stored images",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		eng, err := engine.New(st, blob.NewStore(cfg.DataDir), localEngineConfig(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
			os.Exit(1)
		}
		if err := eng.DeleteBatch(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting batch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %s\n", args[0])
	},
	Args: cobra.ExactArgs(1),
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every local batch",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		eng, err := engine.New(st, blob.NewStore(cfg.DataDir), localEngineConfig(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
			os.Exit(1)
		}
		if err := eng.ClearAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing batches: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("All local batches deleted")
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
}
