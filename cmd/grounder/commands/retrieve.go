package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grounder-ai/grounder/internal/logging"
	"github.com/grounder-ai/grounder/internal/retrieve"
)

// NewRetrieveCmd constructs the `grounder retrieve` command, which answers a
// single question against the published corpus and prints the citable chunks.
func NewRetrieveCmd() *cobra.Command {
	var topK int
	var threshold float64
	var dedupe bool

	cmd := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Answer a question with citable excerpts from the indexed corpus",
		Long: `Embed the question, search the vector service for the nearest chunks, and
print each result's verbatim text with its source document and score.

Requires a published index (run 'grounder index' first) and a reachable
vector service.

Examples:
  grounder retrieve "how do we rotate the signing keys?"
  grounder retrieve --top-k 3 --threshold 0.4 "deployment rollback procedure"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			query := args[0]

			repo, err := retrieve.NewFileRepository(indexRoot())
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			batcher, err := buildBatcher(ctx, log)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			svc, err := buildVectorService(ctx, log)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			defer svc.Close()

			ret, err := retrieve.New(batcher, svc, repo, retrieve.Config{
				TopK:             topK,
				ScoreThreshold:   float32(threshold),
				DedupeByDocument: dedupe,
			}, log, nil)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			chunks, err := ret.Retrieve(ctx, query)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			if len(chunks) == 0 {
				fmt.Println("no matching chunks found")
				return nil
			}

			fmt.Printf("corpus version %s: %d result(s)\n\n", repo.Version(), len(chunks))
			for i, c := range chunks {
				fmt.Printf("%d. %s (chunk %d, score %.3f)\n", i+1, c.DocumentName, c.IndexInDocument, c.Score)
				fmt.Println(indent(c.Text, "   "))
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Maximum number of chunks to return")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "Minimum similarity score (0 keeps everything)")
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "Return at most one chunk per source document")

	return cmd
}

// indent prefixes every line of s for readable terminal output.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
