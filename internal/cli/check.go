package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"priorart/internal/adapter/search"
	"priorart/internal/domain"
	"priorart/internal/usecase"
)

var checkQuery string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the embedding provider and index end to end",
	Long: `Embed a probe string with the configured provider and report the vector
dimension and latency. When a usable index exists, also run a sample search
against it.

Examples:
  priorart check
  priorart check -q "video encoder"`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkQuery, "query", "q", "prior art retrieval", "probe query")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	rootDir := GetRootDir()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	fmt.Println("PROVIDER CHECK")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Provider:  %s\n", embedder.ProviderID())
	fmt.Printf("Dimension: %d\n", embedder.Dimension())

	start := time.Now()
	callCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Embedding.RequestTimeout())
	vec, err := embedder.Embed(callCtx, checkQuery)
	cancel()
	if err != nil {
		return fmt.Errorf("probe embedding failed: %w", err)
	}
	fmt.Printf("Probe:     %q -> %d dimensions in %s\n",
		checkQuery, len(vec), time.Since(start).Round(time.Millisecond))

	st, err := openStore(rootDir)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	defer st.Close()

	ix, err := st.Load(indexFingerprint(cfg, embedder))
	if err != nil {
		if errors.Is(err, domain.ErrNotIndexed) {
			fmt.Println("\nNo usable index for the current settings; skipping the search check.")
			return nil
		}
		return err
	}

	fmt.Println()
	fmt.Println("SEARCH CHECK")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Chunks:    %d\n", ix.Len())

	retriever := usecase.NewRetriever(embedder, search.NewBruteSearcher(), cfg.Embedding.RequestTimeout())
	retriever.SetIndex(ix)

	start = time.Now()
	results, err := retriever.Retrieve(cmd.Context(), domain.RawText(checkQuery), 3)
	if err != nil {
		return fmt.Errorf("sample search failed: %w", err)
	}
	fmt.Printf("Searched in %s\n\n", time.Since(start).Round(time.Millisecond))

	for i, r := range results {
		fmt.Printf("  [%d] %s @%d  score %.4f\n", i+1, r.SourceID, r.StartOffset, r.Score)
	}
	return nil
}
