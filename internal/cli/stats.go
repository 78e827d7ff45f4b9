package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"priorart/internal/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics for the committed index snapshot",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore(GetRootDir())
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	defer st.Close()

	ix, err := st.Snapshot()
	if err != nil {
		if errors.Is(err, domain.ErrNotIndexed) {
			return fmt.Errorf("no index found. Run 'priorart index' first")
		}
		return err
	}

	stats := ix.Stats()
	fp := ix.Fingerprint()

	fmt.Printf("Provider:      %s\n", fp.Provider)
	fmt.Printf("Chunk size:    %d\n", fp.ChunkSize)
	fmt.Printf("Chunk overlap: %d\n", fp.ChunkOverlap)
	fmt.Printf("Fingerprint:   %s\n", fp.Hash())
	fmt.Printf("Documents:     %d\n", stats.Sources)
	fmt.Printf("Chunks:        %d\n", stats.Records)
	fmt.Printf("Dimension:     %d\n", stats.Dimension)
	fmt.Printf("Built at:      %s\n", stats.BuiltAt.Format(time.RFC3339))
	return nil
}
