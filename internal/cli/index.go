package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"priorart/internal/adapter/chunker"
	"priorart/internal/adapter/corpus"
	"priorart/internal/usecase"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the search index for the configured corpus",
	Long: `Chunk and embed every document in the corpus and store the result in
.priorart/index.db within the root directory. A stored snapshot built with
the current provider and chunking settings is reused as-is.

Examples:
  priorart index           # Build, or reuse a current snapshot
  priorart index --force   # Rebuild unconditionally`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "rebuild even if the stored snapshot matches")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	rootDir := GetRootDir()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(rootDir)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	defer st.Close()

	ck, err := chunker.NewWindowChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}

	loader, err := corpus.NewLoader(cfg.Corpus.Includes, cfg.Corpus.Excludes)
	if err != nil {
		return err
	}

	// Progress bar over embedded chunks, created once the total is known
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex

	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)
	}

	builder, err := usecase.NewBuilder(loader, ck, embedder, st, usecase.BuildOptions{
		ChunkSize:         cfg.Chunking.Size,
		ChunkOverlap:      cfg.Chunking.Overlap,
		Concurrency:       cfg.Embedding.Concurrency,
		MaxRetries:        cfg.Embedding.MaxRetries,
		RequestTimeout:    cfg.Embedding.RequestTimeout(),
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Progress:          progress,
	})
	if err != nil {
		return err
	}

	if !indexForce {
		if ix, err := st.Load(builder.Fingerprint()); err == nil {
			fmt.Printf("Index is up to date (%d chunks, built %s). Use --force to rebuild.\n",
				ix.Len(), ix.BuiltAt().Format(time.RFC3339))
			return nil
		}
	}

	fmt.Printf("Indexing corpus in %s (provider: %s)\n", corpusDir(cfg, rootDir), embedder.ProviderID())

	result, err := builder.Build(cmd.Context(), corpusDir(cfg, rootDir))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndexed %d chunks from %d documents in %s\n",
		result.Index.Len(), result.Documents, result.Elapsed.Round(time.Millisecond))
	if result.ChunksDropped > 0 {
		fmt.Printf("Warning: %d chunks were dropped after repeated embedding failures\n", result.ChunksDropped)
	}
	return nil
}
