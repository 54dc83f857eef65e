// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the papersearch CLI: ingest and
// normalize bibliographic metadata, then search the canonical records.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/papersearch/internal/embed"
	"github.com/pdiddy/papersearch/internal/secrets"
	"github.com/pdiddy/papersearch/internal/store"
	"github.com/pdiddy/papersearch/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials read from .secrets/ at startup.
var loadedSecrets secrets.Secrets

var rootCmd = &cobra.Command{
	Use:   "papersearch",
	Short: "Resolve scholarly metadata into canonical records and search them",
	Long: `papersearch merges metadata fragments from several registries into one
canonical record per work, with per-field provenance and a confidence score,
and answers hybrid lexical and semantic queries over the result.

Typical flow: ingest (or import) bundles, normalize, then search.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./papersearch.yaml or ~/.config/papersearch/papersearch.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding the database and exports")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	viper.BindPFlag("store.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	setDefaults(types.DefaultConfig())
}

// setDefaults registers every config key so environment variables such as
// PAPERSEARCH_EMBED_PROVIDER are picked up by Unmarshal.
func setDefaults(d types.Config) {
	for key, v := range map[string]any{
		"store.data_dir":         d.Store.DataDir,
		"store.db_file":          d.Store.DBFile,
		"lexical.k1":             d.Lexical.K1,
		"lexical.b":              d.Lexical.B,
		"lexical.synonyms_file":  d.Lexical.SynonymsFile,
		"embed.provider":         string(d.Embed.Provider),
		"embed.host":             d.Embed.Host,
		"embed.model":            d.Embed.Model,
		"embed.api_key":          d.Embed.APIKey,
		"embed.dimensions":       d.Embed.Dimensions,
		"embed.cache_size":       d.Embed.CacheSize,
		"semantic.workers":       d.Semantic.Workers,
		"semantic.m":             d.Semantic.M,
		"semantic.ef_search":     d.Semantic.EfSearch,
		"ranker.text_weight":     d.Ranker.TextWeight,
		"ranker.semantic_weight": d.Ranker.SemanticWeight,
		"ranker.over_fetch":      d.Ranker.OverFetch,
		"ranker.normalize":       d.Ranker.Normalize,
		"http.timeout":           d.HTTP.Timeout,
		"http.user_agent":        d.HTTP.UserAgent,
		"http.email":             d.HTTP.Email,
		"http.max_retries":       d.HTTP.MaxRetries,
	} {
		viper.SetDefault(key, v)
	}
}

func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("papersearch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "papersearch"))
		}
	}

	viper.SetEnvPrefix("PAPERSEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the effective configuration: defaults, then config
// file, then environment and flags, then .secrets/ for empty credentials.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("reading configuration: %w", err)
	}
	loadedSecrets.Apply(&cfg)
	return cfg, nil
}

func openStore(cfg types.Config) (*store.Store, error) {
	return store.Open(cfg.Store)
}

func newEmbedder(cfg types.Config) (embed.Embedder, error) {
	return embed.New(cfg.Embed)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
