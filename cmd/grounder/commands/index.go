package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/grounder-ai/grounder/internal/corpus"
	"github.com/grounder-ai/grounder/internal/index"
	"github.com/grounder-ai/grounder/internal/logging"
)

// NewIndexCmd constructs the `grounder index` command, which runs the full
// indexing pipeline over a corpus directory and publishes a new version.
func NewIndexCmd() *cobra.Command {
	var corpusDir string
	var skipLoad bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a corpus directory and publish a new searchable version",
		Long: `Split every .txt and .md document under --corpus into overlapping chunks,
embed them, and publish the result as an immutable corpus version under the
index root. Unless --skip-load is set, the embeddings are then bulk-loaded
into the vector service so retrieval can serve the new version immediately.

A failing document or chunk never aborts the run: the surviving chunks are
published and every failure is reported in the run summary.

Required environment variables:
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure, gemini (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)
  INDEX_ROOT           Index root directory (default: ./grounder-index)
  QDRANT_HOST          Vector service hostname (default: localhost)
  QDRANT_PORT          Vector service gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: grounder-chunks)

Examples:
  grounder index --corpus ./docs
  grounder index --corpus ./docs --skip-load
  EMBEDDING_PROVIDER=openai grounder index --corpus ./kb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			if corpusDir == "" {
				return fmt.Errorf("index: --corpus is required")
			}

			loaded, err := corpus.LoadDir(corpusDir)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			log.Info("corpus loaded",
				slog.String("dir", corpusDir),
				slog.Int("documents", len(loaded.Documents)),
				slog.Int("unreadable", len(loaded.Failed)),
			)
			if len(loaded.Documents) == 0 {
				return fmt.Errorf("index: no readable documents under %s", corpusDir)
			}

			chunker, err := buildChunker()
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			batcher, err := buildBatcher(ctx, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			root := indexRoot()
			mat := index.NewMaterializer(root, getEnvInt64("INDEX_SHARD_SIZE_BYTES", 0))
			pipeline, err := index.NewPipeline(chunker, batcher, mat, root, index.PipelineConfig{
				DocumentConcurrency: getEnvInt("INDEX_DOCUMENT_CONCURRENCY", 0),
			}, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			runStore := openRunStore(log)
			if runStore != nil {
				defer runStore.Close()
			}

			runID := index.NewRunID()
			summary, runErr := pipeline.Run(ctx, runID, loaded.Documents)

			// Documents the loader could not read count as failures too.
			for _, f := range loaded.Failed {
				summary.AddDocumentFailure(f.Path, f.Err)
			}

			recordRun(ctx, runStore, summary, runErr, log)
			if runErr != nil {
				return fmt.Errorf("index: run %s: %w", runID, runErr)
			}

			fmt.Printf("published version %s: %d/%d documents, %d chunks embedded, %d failed\n",
				summary.Version,
				summary.DocumentsSucceeded, summary.DocumentsSucceeded+summary.DocumentsFailed,
				summary.ChunksEmbedded, summary.ChunksFailed,
			)

			if skipLoad {
				log.Info("vector load skipped", slog.String("version", summary.Version))
				return nil
			}

			manifest, err := index.LoadManifest(root)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			svc, err := buildVectorService(ctx, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer svc.Close()

			points, err := svc.Load(ctx, root, manifest)
			if err != nil {
				return fmt.Errorf("index: vector load: %w", err)
			}
			fmt.Printf("loaded %d points into the vector service\n", points)
			return nil
		},
	}

	cmd.Flags().StringVarP(&corpusDir, "corpus", "c", "", "Directory of .txt/.md documents to index")
	cmd.Flags().BoolVar(&skipLoad, "skip-load", false, "Publish artifacts only, without loading the vector service")

	return cmd
}
