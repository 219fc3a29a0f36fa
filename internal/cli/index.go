package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/loader"
)

var (
	indexJSON bool
	indexDump bool
)

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Index collection files and print their statistics",
	Long: `Indexes each file as a collection named after its final path segment.
Files are indexed in argument order. With --dump the term table of every
collection is printed as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output as JSON")
	indexCmd.Flags().BoolVar(&indexDump, "dump", false, "print every term and its postings")
	rootCmd.AddCommand(indexCmd)
}

type indexOutput struct {
	indexer.CollectionInfo
	Index map[string][]int `json:"index,omitempty"`
}

func runIndex(cmd *cobra.Command, args []string) error {
	engine := indexer.NewEngine(nil)
	infos, err := loader.LoadAll(cmd.Context(), engine, args)
	if err != nil {
		return err
	}

	outputs := make([]indexOutput, len(infos))
	for i, info := range infos {
		outputs[i].CollectionInfo = info
		if !indexDump {
			continue
		}
		idx, err := engine.GetIndex(info.Name)
		if err != nil {
			return err
		}
		outputs[i].Index = make(map[string][]int, len(idx))
		for _, entry := range idx.Snapshot() {
			outputs[i].Index[entry.Term] = entry.Postings
		}
	}

	out := cmd.OutOrStdout()
	if indexJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(outputs)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tDOCUMENTS\tTERMS")
	for _, o := range outputs {
		fmt.Fprintf(w, "%s\t%d\t%d\n", o.Name, o.Documents, o.Terms)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if indexDump {
		for _, info := range infos {
			idx, _ := engine.GetIndex(info.Name)
			fmt.Fprintf(out, "\n%s\n", info.Name)
			for _, entry := range idx.Snapshot() {
				fmt.Fprintf(out, "  %s %v\n", entry.Term, []int(entry.Postings))
			}
		}
	}
	return nil
}
