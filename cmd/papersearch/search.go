// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/papersearch/internal/engine"
	"github.com/pdiddy/papersearch/internal/rank"
	"github.com/pdiddy/papersearch/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid lexical and semantic search over canonical records",
	Long: `Search builds the BM25 and embedding indexes over the canonical records,
over-fetches lexical candidates, applies concept filters and boosts, and
re-ranks the survivors with a weighted lexical and semantic score.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	q := rank.Query{Text: strings.Join(args, " ")}
	q.TopK, _ = cmd.Flags().GetInt("top-k")
	q.Alpha, _ = cmd.Flags().GetFloat64("alpha")
	q.RequiredConcepts, _ = cmd.Flags().GetStringSlice("require")
	q.BoostedConcepts, _ = cmd.Flags().GetStringSlice("boost")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	e, err := openEngine()
	if err != nil {
		return err
	}
	results, err := e.Search(context.Background(), q)
	if err != nil {
		return err
	}
	return formatSearchOutput(cmd.OutOrStdout(), results, jsonOutput)
}

func formatSearchOutput(w io.Writer, results []rank.Result, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-4s  %-7s  %-24s  %-50s  %s\n", "Rank", "Score", "Work", "Title", "Year")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for i, r := range results {
		fmt.Fprintf(w, "%-4d  %-7.3f  %-24s  %-50s  %s\n",
			i+1, r.FinalScore, truncate(r.Record.WorkID, 24), truncate(r.Record.Title, 50), year(r.Record))
	}
	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

var similarCmd = &cobra.Command{
	Use:   "similar <work-id>",
	Short: "List the records whose embeddings are closest to a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

func runSimilar(cmd *cobra.Command, args []string) error {
	k, _ := cmd.Flags().GetInt("k")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	e, err := openEngine()
	if err != nil {
		return err
	}
	neighbors, err := e.Similar(args[0], k)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(neighbors)
	}
	for i, n := range neighbors {
		rec := e.Records[n.RecordID]
		fmt.Fprintf(w, "%-4d  %-7.3f  %-24s  %s\n", i+1, n.Similarity, truncate(n.RecordID, 24), truncate(rec.Title, 60))
	}
	return nil
}

func openEngine() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return engine.Open(context.Background(), st, embedder, cfg)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func year(rec types.CanonicalRecord) string {
	if rec.Year == 0 {
		return "-"
	}
	return fmt.Sprint(rec.Year)
}

func init() {
	searchCmd.Flags().Int("top-k", 10, "number of results")
	searchCmd.Flags().Float64("alpha", 1.0, "weight of the concept boost")
	searchCmd.Flags().StringSlice("require", nil, "concept ids every result must carry")
	searchCmd.Flags().StringSlice("boost", nil, "concept ids whose tag weights boost the score")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	similarCmd.Flags().Int("k", 10, "number of neighbours")
	similarCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(similarCmd)
}
