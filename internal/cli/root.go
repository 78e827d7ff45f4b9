package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"priorart/config"
	"priorart/internal/adapter/embedding"
	"priorart/internal/adapter/store"
	"priorart/internal/domain"
	"priorart/internal/logger"
	"priorart/internal/port"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
)

var rootCmd = &cobra.Command{
	Use:   "priorart",
	Short: "Semantic prior-document search over a local patent corpus",
	Long: `priorart chunks a corpus of patent-shaped documents, embeds the chunks
with a configurable provider and retrieves the passages most similar to a
query. The index lives in .priorart/index.db under the root directory and
is rebuilt automatically when the provider or chunking settings change.

Example usage:
  priorart index                          # Build the index for the configured corpus
  priorart search -q "adaptive encoding"  # Search with free text
  priorart search --doc application.json  # Search with a structured document
  priorart stats                          # Inspect the committed snapshot`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		_ = godotenv.Load()

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger.SetLevel(cfg.Logging.Level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./priorart.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

// newEmbedder builds the provider the config names.
func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(e.APIKeyEnv, e.Model, e.Dimension, e.RequestTimeout())
	case "gemini":
		return embedding.NewGeminiEmbedder(e.APIKeyEnv, e.Model, e.Dimension, e.RequestTimeout())
	case "ollama":
		return embedding.NewOllamaEmbedder(e.Model, e.BaseURL, e.Dimension, e.RequestTimeout())
	case "mock":
		return embedding.NewMockEmbedder(e.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrConfiguration, e.Provider)
	}
}

func openStore(rootDir string) (*store.BoltStore, error) {
	if err := config.EnsureStateDir(rootDir); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return store.NewBoltStore(config.IndexDBPath(rootDir))
}

func corpusDir(cfg *config.Config, rootDir string) string {
	dir := cfg.Corpus.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(rootDir, dir)
	}
	return dir
}

// indexFingerprint identifies the snapshot the current settings expect.
func indexFingerprint(cfg *config.Config, embedder port.Embedder) domain.Fingerprint {
	return domain.Fingerprint{
		Provider:     embedder.ProviderID(),
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
	}
}
