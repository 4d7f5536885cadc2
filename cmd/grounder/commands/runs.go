package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/grounder-ai/grounder/internal/store"
)

// NewRunsCmd constructs the `grounder runs` command, which lists recent
// indexing runs from the history store.
func NewRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent indexing runs",
		Long: `List recent indexing runs recorded in the history database, newest first.

History is stored in ~/.grounder/history.db by default; override with
GROUNDER_HISTORY_DB or disable with GROUNDER_HISTORY_DB=disabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dbPath := os.Getenv("GROUNDER_HISTORY_DB")
			if dbPath == "disabled" {
				return fmt.Errorf("runs: history is disabled via GROUNDER_HISTORY_DB=disabled")
			}
			if dbPath == "" {
				var err error
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("runs: %w", err)
				}
			}

			s, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("runs: %w", err)
			}
			defer s.Close()

			runs, err := s.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("no indexing runs recorded yet")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tDOCS OK/FAIL\tCHUNKS OK/FAIL\tVERSION\tERROR")
			for _, r := range runs {
				version := r.Version
				if version == "" {
					version = "-"
				}
				errMsg := r.Error
				if errMsg == "" {
					errMsg = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d/%d\t%s\t%s\n",
					r.RunID,
					r.StartedAt.UTC().Format(time.RFC3339),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
					r.DocumentsSucceeded, r.DocumentsFailed,
					r.ChunksEmbedded, r.ChunksFailed,
					version, errMsg,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}
