package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scantrad/scantrad/internal/blob"
	"github.com/scantrad/scantrad/internal/config"
	"github.com/scantrad/scantrad/internal/engine"
	"github.com/scantrad/scantrad/internal/logging"
	"github.com/scantrad/scantrad/internal/remote"
	"github.com/scantrad/scantrad/internal/schema"
	"github.com/scantrad/scantrad/internal/view"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <batchId>",
	Short: "Show a batch's progress",
	Long: `Show per-page progress for one batch. Locally processed batches are
read from the local database; anything else is fetched from the
backend.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		batchID := args[0]

		eng, err := engine.New(st, blob.NewStore(cfg.DataDir), localEngineConfig(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
			os.Exit(1)
		}
		if b := eng.GetBatch(batchID); b != nil {
			printSummary(view.FromBatch(b))
			return
		}

		client := mustClient(cfg, st)
		pages, err := client.FetchBatchStatus(context.Background(), batchID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching status: %v\n", err)
			os.Exit(1)
		}
		printSummary(view.FromBatch(remote.ReconcileBatch(batchID, pages, time.Now())))
	},
}

var resultOut string

var resultCmd = &cobra.Command{
	Use:   "result <batchId>",
	Short: "Show a batch's translated pages",
	Long: `Show translated pages for one batch. Locally processed batches can be
exported with --out; remote batches are listed with their translated
image URLs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		batchID := args[0]

		eng, err := engine.New(st, blob.NewStore(cfg.DataDir), localEngineConfig(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
			os.Exit(1)
		}
		if b := eng.GetBatch(batchID); b != nil {
			for _, p := range b.Pages {
				fmt.Printf("%s (%s): %s\n", p.ID, p.Filename, p.Status)
			}
			if resultOut != "" {
				written, err := eng.ExportResults(batchID, resultOut)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error exporting results: %v\n", err)
					os.Exit(1)
				}
				fmt.Printf("Exported %d translated page(s) to %s\n", written, resultOut)
			}
			return
		}

		client := mustClient(cfg, st)
		pages, err := client.FetchBatchResult(context.Background(), batchID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching result: %v\n", err)
			os.Exit(1)
		}

		for _, p := range pages {
			if p.TranslatedURL == "" {
				fmt.Printf("%s (%s): %s\n", p.PageID, p.Filename, p.Status)
				continue
			}
			fmt.Printf("%s (%s): %s\n", p.PageID, p.Filename, p.TranslatedURL)
		}
	},
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List batches",
	Long: `List locally processed batches and, when logged in, the current
user's batches on the backend.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		eng, err := engine.New(st, blob.NewStore(cfg.DataDir), localEngineConfig(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		local := eng.AllBatches()
		if len(local) > 0 {
			fmt.Printf("Local batches (%d):\n", len(local))
			for _, b := range local {
				s := view.FromBatch(b)
				fmt.Printf("  %s  %-10s  %s  %s\n", s.ID, s.Status, s.Progress(), s.CreatedAt)
			}
		}

		client := mustClient(cfg, st)
		if !client.Session().LoggedIn() {
			if len(local) == 0 {
				fmt.Println("No batches. Log in to list remote batches.")
			}
			return
		}

		result := view.Query(context.Background(), func(ctx context.Context) ([]view.BatchSummary, error) {
			remoteBatches, err := client.FetchUserBatches(ctx, client.Session().Pseudo())
			if err != nil {
				return nil, err
			}
			summaries := make([]view.BatchSummary, 0, len(remoteBatches))
			for _, rb := range remoteBatches {
				summaries = append(summaries, view.FromRemoteListing(rb))
			}
			return summaries, nil
		})
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching remote batches: %v\n", result.Err)
			os.Exit(1)
		}

		fmt.Printf("Remote batches (%d):\n", len(result.Data))
		for _, s := range result.Data {
			fmt.Printf("  %s  %-10s  %s\n", s.ID, s.Status, s.Progress())
		}
	},
}

var pagesBatchID string

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List translated pages",
	Long: `List the current user's translated pages, newest first. With --batch,
list only that batch's translated pages.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		client := mustClient(cfg, st)
		ctx := context.Background()

		var (
			translated []schema.TranslatedPage
			err        error
		)
		if pagesBatchID != "" {
			translated, err = client.FetchBatchTranslatedPages(ctx, pagesBatchID)
		} else {
			translated, err = client.FetchUserTranslatedPages(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching pages: %v\n", err)
			os.Exit(1)
		}

		if len(translated) == 0 {
			fmt.Println("No translated pages")
			return
		}
		for _, p := range translated {
			fmt.Printf("%s  %s  %s\n",
				p.TranslationCompletedAt.Local().Format("2006-01-02 15:04"),
				p.Filename, p.TranslatedURL)
		}
	},
}

// localEngineConfig builds the engine config used by CLI commands.
func localEngineConfig(cfg *config.Config) *engine.Config {
	c := engine.DefaultConfig()
	c.StepDelay = cfg.StepDelay
	c.Logger = logging.NewLogger("engine", cfg.LogFile)
	return c
}

func printSummary(s view.BatchSummary) {
	fmt.Printf("Batch %s\n", s.ID)
	fmt.Printf("  Status:   %s\n", s.Status)
	fmt.Printf("  Progress: %s\n", s.Progress())
	fmt.Printf("  Created:  %s\n", s.CreatedAt)
	if s.CompletedAt != "" {
		fmt.Printf("  Done:     %s\n", s.CompletedAt)
	}
	for _, p := range s.Pages {
		line := fmt.Sprintf("  %s (%s): %s", p.ID, p.Filename, p.Status)
		if p.DetectedBubbleCount > 0 {
			line += fmt.Sprintf(", %d bubbles", p.DetectedBubbleCount)
		}
		fmt.Println(line)
	}
}

func init() {
	resultCmd.Flags().StringVar(&resultOut, "out", "", "export a local batch's translated artifacts to this directory")
	pagesCmd.Flags().StringVar(&pagesBatchID, "batch", "", "limit to one batch")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(batchesCmd)
	rootCmd.AddCommand(pagesCmd)
}
