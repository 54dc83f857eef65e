// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/papersearch/internal/acquire"
	"github.com/pdiddy/papersearch/internal/engine"
	"github.com/pdiddy/papersearch/internal/store"
	"github.com/pdiddy/papersearch/pkg/types"
)

// batchResult counts the outcome of a multi-identifier run.
type batchResult struct {
	Stored int
	Failed int
}

func (r batchResult) Total() int { return r.Stored + r.Failed }

var ingestCmd = &cobra.Command{
	Use:   "ingest <doi|work-id|arxiv-id>...",
	Short: "Fetch metadata for works and merge it into canonical records",
	Long: `Ingest queries every registry for each identifier, stores the collected
fragments as one raw bundle, and merges the bundle into the canonical
records incrementally. Registry failures are recorded on the bundle and do
not abort the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	query, _ := cmd.Flags().GetString("query")
	pdf, _ := cmd.Flags().GetString("pdf")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	r, err := engine.OpenResolver(ctx, st)
	if err != nil {
		return err
	}
	fetchers := acquire.Fetchers(acquire.NewClient(cfg.HTTP), cfg.HTTP)

	w := cmd.OutOrStdout()
	var res batchResult
	for _, id := range args {
		b, err := acquire.Assemble(ctx, fetchers, acquire.Request{Identifier: id, Query: query, PDFPath: pdf})
		if err != nil {
			fmt.Fprintf(w, "failed: %s: %v\n", id, err)
			res.Failed++
			continue
		}
		upd, err := engine.NormalizeBundle(ctx, st, r, &b)
		if err != nil {
			fmt.Fprintf(w, "failed: %s: %v\n", id, err)
			res.Failed++
			continue
		}
		res.Stored++
		fmt.Fprintf(w, "ingested: %s -> %s (bundle %d, confidence %.1f)\n",
			id, upd.Record.WorkID, b.ID, upd.Record.Confidence)
		for _, e := range b.Errors {
			fmt.Fprintf(w, "  warning: %s\n", e)
		}
		for _, old := range upd.Superseded {
			fmt.Fprintf(w, "  merged: %s\n", old)
		}
	}

	fmt.Fprintf(w, "\n%d ingested, %d failed (%d total)\n", res.Stored, res.Failed, res.Total())
	if res.Failed > 0 {
		return fmt.Errorf("%d identifier(s) failed", res.Failed)
	}
	return nil
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store raw bundles produced by external collaborators or a .bib file",
	Long: `Import reads a YAML list of raw bundles (for example document extractor
output), stores each one with a fresh id, and then rebuilds the canonical
records. Bundles already stored for the same identity and retrieval time
are skipped.

With --format bibtex each BibTeX entry becomes one bundle holding a
document-extractor fragment. --fetch also queries the registries for
entries that carry a DOI or arXiv eprint.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	fetch, _ := cmd.Flags().GetBool("fetch")

	var bundles []types.RawBundle
	switch format {
	case "yaml", "":
		bundles, err = readBundles(args[0])
	case "bibtex", "bib":
		bundles, err = readBibTeX(args[0])
	default:
		return fmt.Errorf("unsupported format %q: use yaml or bibtex", format)
	}
	if err != nil {
		return err
	}
	if fetch {
		fetchers := acquire.Fetchers(acquire.NewClient(cfg.HTTP), cfg.HTTP)
		for i := range bundles {
			acquire.Enrich(context.Background(), fetchers, &bundles[i])
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	w := cmd.OutOrStdout()
	stored, skipped, err := importBundles(context.Background(), st, bundles, w)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d stored, %d skipped\n", stored, skipped)

	if noNormalize, _ := cmd.Flags().GetBool("no-normalize"); noNormalize {
		return nil
	}
	sum, err := engine.Normalize(context.Background(), st, io.Discard)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d bundles -> %d records (%d unresolved)\n", sum.Bundles, sum.Records, sum.Unresolved)
	return nil
}

func readBundles(path string) ([]types.RawBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var bundles []types.RawBundle
	if err := yaml.Unmarshal(data, &bundles); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return bundles, nil
}

func readBibTeX(path string) ([]types.RawBundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	entries, err := acquire.ParseBibTeX(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bundles := make([]types.RawBundle, len(entries))
	for i, e := range entries {
		bundles[i] = e.Bundle
	}
	return bundles, nil
}

func importBundles(ctx context.Context, st *store.Store, bundles []types.RawBundle, w io.Writer) (stored, skipped int, err error) {
	for i := range bundles {
		b := bundles[i]
		b.ID = 0
		if err := st.InsertBundle(ctx, &b); err != nil {
			if errors.Is(err, store.ErrDuplicateBundle) {
				fmt.Fprintf(w, "skipped: %v\n", err)
				skipped++
				continue
			}
			return stored, skipped, err
		}
		stored++
	}
	return stored, skipped, nil
}

func init() {
	ingestCmd.Flags().String("query", "", "search query that led to these works, kept for provenance")
	ingestCmd.Flags().String("pdf", "", "path of the source PDF, kept for provenance")
	importCmd.Flags().Bool("no-normalize", false, "store bundles without rebuilding canonical records")
	importCmd.Flags().String("format", "yaml", "input format: yaml (raw bundles) or bibtex")
	importCmd.Flags().Bool("fetch", false, "query the registries for each entry's DOI or arXiv id")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(importCmd)
}
