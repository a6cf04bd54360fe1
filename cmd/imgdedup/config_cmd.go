package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdxmph/imgdedup/pkg/config"
	"github.com/pdxmph/imgdedup/pkg/duplicate"
)

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			configShow(cmd.OutOrStdout(), cfg, catalogSummary(cmd.Context(), cfg.CatalogPath()))
			return nil
		},
	}

	configSetCmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a configuration value",
		Long: `Set a configuration value and save the file.

Keys: server.addr, server.max_upload_mb, storage.upload_dir,
dedup.image_extensions, dedup.document_extensions, dedup.threshold,
dedup.workers, dedup.max_pixels, catalog.enabled, catalog.path, auth.enabled,
auth.token.<token> (value "uid[,email]"), logging.level, logging.file,
template.<name>`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return configSet(*configPath, args[0], args[1])
		},
	}

	configCmd.AddCommand(configShowCmd, configSetCmd)
	return configCmd
}

// catalogSummary describes the catalog at path without creating it
func catalogSummary(ctx context.Context, path string) string {
	if _, err := os.Stat(path); err != nil {
		return "none recorded"
	}
	cat, err := duplicate.OpenCatalog(path)
	if err != nil {
		return fmt.Sprintf("unavailable (%v)", err)
	}
	defer cat.Close()

	n, err := cat.Count(ctx)
	if err != nil {
		return fmt.Sprintf("unavailable (%v)", err)
	}
	return fmt.Sprintf("%d", n)
}

func configShow(w io.Writer, cfg *config.Config, catalogEntries string) {
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Server:\n")
	fmt.Fprintf(w, "    Address: %s\n", cfg.Server.Addr)
	fmt.Fprintf(w, "    Max Upload: %d MB\n", cfg.Server.MaxUploadMB)
	fmt.Fprintf(w, "    Upload Dir: %s\n", cfg.Storage.UploadDir)

	fmt.Fprintf(w, "\n  Dedup:\n")
	fmt.Fprintf(w, "    Image Extensions: %s\n", strings.Join(cfg.Dedup.ImageExtensions, ", "))
	fmt.Fprintf(w, "    Document Extensions: %s\n", strings.Join(cfg.Dedup.DocumentExtensions, ", "))
	fmt.Fprintf(w, "    Threshold: %d\n", cfg.Dedup.ThresholdValue())
	fmt.Fprintf(w, "    Workers: %d\n", cfg.Dedup.Workers)
	fmt.Fprintf(w, "    Max Pixels: %d\n", cfg.Dedup.MaxPixels)

	fmt.Fprintf(w, "\n  Catalog:\n")
	fmt.Fprintf(w, "    Enabled: %t\n", cfg.Catalog.Enabled)
	fmt.Fprintf(w, "    Path: %s\n", cfg.CatalogPath())
	fmt.Fprintf(w, "    Entries: %s\n", catalogEntries)

	fmt.Fprintf(w, "\n  Auth:\n")
	fmt.Fprintf(w, "    Enabled: %t\n", cfg.Auth.Enabled)
	tokens := make([]string, 0, len(cfg.Auth.Tokens))
	for token := range cfg.Auth.Tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		fmt.Fprintf(w, "    %s: %s\n", maskString(token), cfg.Auth.Tokens[token].Label())
	}

	fmt.Fprintf(w, "\n  Logging:\n")
	fmt.Fprintf(w, "    Level: %s\n", cfg.Logging.Level)
	if cfg.Logging.File != "" {
		fmt.Fprintf(w, "    File: %s\n", cfg.Logging.File)
	}

	fmt.Fprintf(w, "\n  Templates:\n")
	names := make([]string, 0, len(cfg.Templates))
	for name := range cfg.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// Truncate long templates for display
		display := cfg.Templates[name]
		if len(display) > 60 {
			display = display[:57] + "..."
		}
		fmt.Fprintf(w, "    %s: %s\n", name, display)
	}
}

func configSet(path, key, value string) error {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if path != "" {
		err = cfg.SaveFile(path)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Set %s\n", key)
	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
