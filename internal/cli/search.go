package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/loader"
)

var (
	searchTerms  string
	searchWords  []string
	searchTarget string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <file>...",
	Short: "Index collection files, then look up terms in one of them",
	Long: `Indexes the given files in order and runs one search. Terms come from
--term (repeatable) or --terms, a JSON string or nested JSON array of
strings. Without --target the search runs against the last indexed file.
Each flattened term yields the ascending ordinals of the documents that
contain it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchTerms, "terms", "", `terms as JSON, e.g. '["alice", ["rabbit hole"]]'`)
	searchCmd.Flags().StringArrayVarP(&searchWords, "term", "t", nil, "term to look up (repeatable)")
	searchCmd.Flags().StringVar(&searchTarget, "target", "", "collection to search")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagsMutuallyExclusive("terms", "term")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	terms, err := searchInput()
	if err != nil {
		return err
	}
	var target json.RawMessage
	if cmd.Flags().Changed("target") {
		// Collections are stored under their file name, so a path given
		// as the target resolves the same way it did when loaded.
		if target, err = json.Marshal(ingestion.CollectionName(searchTarget)); err != nil {
			return err
		}
	}

	engine := indexer.NewEngine(nil)
	if _, err := loader.LoadAll(cmd.Context(), engine, args); err != nil {
		return err
	}
	result, err := engine.SearchJSON(terms, target)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(out, "Collection: %s\n", result.Collection)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TERM\tDOCUMENTS")
	for i, term := range result.Terms {
		fmt.Fprintf(w, "%s\t%v\n", term, []int(result.Postings[i]))
	}
	return w.Flush()
}

func searchInput() (json.RawMessage, error) {
	switch {
	case searchTerms != "":
		return json.RawMessage(searchTerms), nil
	case len(searchWords) == 1:
		return json.Marshal(searchWords[0])
	case len(searchWords) > 1:
		return json.Marshal(searchWords)
	default:
		return nil, errors.New("one of --terms or --term is required")
	}
}
