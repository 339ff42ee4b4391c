package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/lazypower/rapport/internal/graph"
	"github.com/lazypower/rapport/internal/ingest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importUser string

var importCmd = &cobra.Command{
	Use:   "import [file.jsonl]",
	Short: "Import interactions from a JSON Lines file",
	Long:  "Import reads one interaction per line (or stdin with - or no argument), journals it and folds it into the user's graph. Replayed raw_refs are skipped.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importUser, "user", "u", "", "User whose graph receives the interactions")
	importCmd.MarkFlagRequired("user")
}

// importSummary counts per-outcome results of an import.
type importSummary struct {
	Lines    int
	Outcomes map[graph.Outcome]int
}

func runImport(cmd *cobra.Command, args []string) error {
	var src io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		src = f
	}

	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	sum, err := importLines(cmd.Context(), rt.ingest, importUser, src, rt.log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Read %s lines for %s\n", humanize.Comma(int64(sum.Lines)), importUser)
	for _, o := range []graph.Outcome{graph.OutcomeApplied, graph.OutcomeDuplicate, ingest.OutcomeRejected, ingest.OutcomeFailed} {
		if n := sum.Outcomes[o]; n > 0 {
			fmt.Fprintf(out, "  %-10s %s\n", o, humanize.Comma(int64(n)))
		}
	}
	return nil
}

// importLines ingests each non-blank line of src. Undecodable lines count as
// rejected; only a read error or cancellation stops the import.
func importLines(ctx context.Context, svc *ingest.Service, userID string, src io.Reader, log *zap.Logger) (importSummary, error) {
	sum := importSummary{Outcomes: make(map[graph.Outcome]int)}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		sum.Lines++
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		var in graph.Interaction
		if err := json.Unmarshal(line, &in); err != nil {
			log.Warn("skipping undecodable line", zap.Int("line", sum.Lines), zap.Error(err))
			sum.Outcomes[ingest.OutcomeRejected]++
			continue
		}
		res, _ := svc.Ingest(ctx, userID, in)
		sum.Outcomes[res.Outcome]++
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("read input: %w", err)
	}
	return sum, nil
}
