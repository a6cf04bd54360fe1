package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pdxmph/imgdedup/pkg/auth"
	"github.com/pdxmph/imgdedup/pkg/batch"
	"github.com/pdxmph/imgdedup/pkg/config"
	"github.com/pdxmph/imgdedup/pkg/templates"
	"github.com/pdxmph/imgdedup/pkg/types"
)

func newScanCmd(configPath *string) *cobra.Command {
	var (
		format     string
		dest       string
		useCatalog bool
	)

	cmd := &cobra.Command{
		Use:   "scan [files...]",
		Short: "Report which files are duplicates of earlier ones",
		Long: `Scan treats the given files as one ordered batch and reports, for each
file, whether it is kept, a duplicate of an earlier file, or skipped.
With --dest the kept files are copied there.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}

			items, sizes, err := readItems(afero.NewOsFs(), args)
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, afero.NewOsFs(), dest, useCatalog || cfg.Catalog.Enabled)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.service.Run(cmd.Context(), auth.Identity{UID: "cli"}, items)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), cfg, format, resp, sizes)
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, or a template name (text, names, markdown, csv)")
	cmd.Flags().StringVar(&dest, "dest", "", "Copy kept files into this directory")
	cmd.Flags().BoolVar(&useCatalog, "catalog", false, "Also compare against files recorded by earlier runs")
	return cmd
}

// readItems loads each path in order. Names keep the path as given.
func readItems(fs afero.Fs, paths []string) ([]batch.Item, map[string]int64, error) {
	items := make([]batch.Item, 0, len(paths))
	sizes := make(map[string]int64, len(paths))
	for _, p := range paths {
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", p, err)
		}
		items = append(items, batch.Item{Name: p, Data: data})
		sizes[p] = int64(len(data))
	}
	return items, sizes, nil
}

func writeReport(w io.Writer, cfg *config.Config, format string, resp *types.UploadResponse, sizes map[string]int64) error {
	switch format {
	case "json":
		report := types.ScanReport{
			BatchID:    resp.BatchID,
			Accepted:   resp.SavedFiles,
			Duplicates: resp.DeletedDuplicates,
			Skipped:    resp.SkippedFiles,
			Decisions:  resp.Decisions,
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "table", "":
		fmt.Fprintln(w, renderDecisions(resp.Decisions, sizes))
		fmt.Fprintf(w, "%d kept, %d duplicates, %d skipped", len(resp.SavedFiles), len(resp.DeletedDuplicates), len(resp.SkippedFiles))
		if len(resp.FailedFiles) > 0 {
			fmt.Fprintf(w, ", %d failed", len(resp.FailedFiles))
		}
		fmt.Fprintln(w)
		return nil
	}

	tmpl, ok := cfg.Templates[format]
	if !ok {
		return fmt.Errorf("unknown format: %s", format)
	}
	for _, d := range resp.Decisions {
		fmt.Fprintln(w, templates.Process(tmpl, templates.BuildVariables(resp.BatchID, d)))
	}
	for _, f := range resp.FailedFiles {
		fmt.Fprintf(os.Stderr, "failed to save %s: %s\n", f.Name, f.Error)
	}
	return nil
}

func renderDecisions(decisions []types.DecisionView, sizes map[string]int64) string {
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		distance := ""
		if d.Status == "duplicate" && d.Family == "image" {
			distance = strconv.Itoa(d.Distance)
		}
		size := ""
		if n, ok := sizes[d.Name]; ok {
			size = humanize.Bytes(uint64(n))
		}
		rows = append(rows, []string{d.Name, d.Family, size, d.Status, d.MatchedLabel, distance})
	}
	return renderTable(
		[]string{"File", "Type", "Size", "Status", "Duplicate Of", "Distance"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
	)
}
