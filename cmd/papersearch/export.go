// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export canonical records to YAML or JSON",
	Long: `Export writes every canonical record, with provenance and merged
fragments, to export.yaml or export.json in the data directory. The csl
format writes a CSL-YAML bibliography to export.csl.yaml instead.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var path string
	switch format {
	case "yaml", "":
		path, err = st.ExportYAML(context.Background())
	case "json":
		path, err = st.ExportJSON(context.Background())
	case "csl":
		path, err = st.ExportCSL(context.Background())
	default:
		return fmt.Errorf("unsupported format %q: use yaml, json or csl", format)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}

func init() {
	exportCmd.Flags().String("format", "yaml", "export format: yaml, json or csl (CSL-YAML bibliography)")
	rootCmd.AddCommand(exportCmd)
}
