// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pdiddy/papersearch/internal/engine"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Rebuild canonical records from every stored bundle",
	Long: `Normalize groups all stored raw bundles into works, merges each work into
a canonical record and replaces the canonical table in one transaction.
Running it twice over the same bundles produces identical records.`,
	Args: cobra.NoArgs,
	RunE: runNormalize,
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	w := cmd.OutOrStdout()
	progress := w
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		progress = io.Discard
	}
	sum, err := engine.Normalize(context.Background(), st, progress)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d bundles -> %d records (%d unresolved)\n", sum.Bundles, sum.Records, sum.Unresolved)
	return nil
}

func init() {
	normalizeCmd.Flags().BoolP("quiet", "q", false, "print only the summary")
	rootCmd.AddCommand(normalizeCmd)
}
