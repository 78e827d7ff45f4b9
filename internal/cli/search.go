package cli

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"priorart/internal/adapter/cache"
	"priorart/internal/adapter/search"
	"priorart/internal/domain"
	"priorart/internal/usecase"
)

var (
	searchQuery string
	searchDoc   string
	searchTopK  int
	searchJSON  bool
	searchCSV   string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the index for similar chunks",
	Long: `Embed a query and return the most similar corpus chunks. The query is
either free text or a structured document (JSON with title, abstract and
claims), from which the title and first claim are used.

Examples:
  priorart search -q "adaptive video encoding"
  priorart search --doc application.json --top-k 10
  priorart search -q "signal filter" --json
  priorart search -q "signal filter" --csv results.csv`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "free-text query")
	searchCmd.Flags().StringVar(&searchDoc, "doc", "", "path to a structured query document (JSON)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.Flags().StringVar(&searchCSV, "csv", "", "write results to a CSV file")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	rootDir := GetRootDir()

	q, err := buildQuery()
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(rootDir)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	defer st.Close()

	ix, err := st.Load(indexFingerprint(cfg, embedder))
	if err != nil {
		if errors.Is(err, domain.ErrNotIndexed) {
			return fmt.Errorf("no usable index for the current settings. Run 'priorart index' first")
		}
		return fmt.Errorf("failed to load index: %w", err)
	}

	retriever := cache.NewCachedRetriever(
		usecase.NewRetriever(embedder, search.NewBruteSearcher(), cfg.Embedding.RequestTimeout()),
		cache.NewQueryCache(100, 5*time.Minute),
	)
	retriever.SetIndex(ix)

	topK := cfg.Retrieve.TopK
	if searchTopK > 0 {
		topK = searchTopK
	}

	results, err := retriever.Retrieve(cmd.Context(), q, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchCSV != "" {
		if err := writeResultsCSV(searchCSV, results); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		fmt.Printf("Wrote %d results to %s\n", len(results), searchCSV)
		return nil
	}

	if searchJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printResults(results)
	return nil
}

func buildQuery() (domain.Query, error) {
	switch {
	case searchQuery != "" && searchDoc != "":
		return domain.Query{}, fmt.Errorf("use either --query or --doc, not both")
	case searchDoc != "":
		data, err := os.ReadFile(searchDoc)
		if err != nil {
			return domain.Query{}, fmt.Errorf("failed to read query document: %w", err)
		}
		var doc domain.StructuredDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return domain.Query{}, fmt.Errorf("failed to parse query document %s: %w", searchDoc, err)
		}
		return domain.Structured(doc), nil
	case searchQuery != "":
		return domain.RawText(searchQuery), nil
	default:
		return domain.Query{}, fmt.Errorf("provide a query with --query or --doc")
	}
}

func printResults(results []domain.RetrievalResult) {
	if len(results) == 0 {
		fmt.Println("No results found.")
		return
	}

	fmt.Printf("Found %d results\n\n", len(results))
	for i, r := range results {
		fmt.Printf("--- [%d] %s @%d (score: %.4f) ---\n", i+1, r.SourceID, r.StartOffset, r.Score)
		if title := r.Metadata["title"]; title != "" {
			fmt.Printf("Title: %s\n", title)
		}
		// Truncate by runes so multibyte text is not cut mid-character
		text := r.Text
		if runes := []rune(text); len(runes) > 300 {
			text = string(runes[:300]) + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}
}

// writeResultsCSV exports one row per result, tagged with a fresh query
// id so rows from separate runs can be told apart after concatenation.
func writeResultsCSV(path string, results []domain.RetrievalResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	queryID := uuid.New().String()
	w := csv.NewWriter(f)
	header := []string{"query_id", "rank", "score", "source_id", "chunk_id", "start_offset", "title", "text"}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, r := range results {
		row := []string{
			queryID,
			strconv.Itoa(i + 1),
			strconv.FormatFloat(r.Score, 'f', 6, 64),
			r.SourceID,
			r.ChunkID,
			strconv.Itoa(r.StartOffset),
			r.Metadata["title"],
			r.Text,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
