package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/config"
	"github.com/JakeFAU/kidssmart/internal/export"
)

func newExportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes every stored activity as CSV, JSON or XLSX",
		Long: `Streams all activities, approved or not, ordered by id. The format
defaults to the --out file extension, or csv when writing to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, format, out)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "csv, json or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, or - for stdout")
	return cmd
}

func runExport(cmd *cobra.Command, formatFlag, out string) (err error) {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}

	spec := formatFlag
	if spec == "" {
		spec = string(export.FormatCSV)
		if out != "-" && filepath.Ext(out) != "" {
			spec = filepath.Ext(out)
		}
	}
	format, err := export.ParseFormat(spec)
	if err != nil {
		return err
	}

	// Export only reads the stores.
	cfg := rt.cfg
	cfg.Headless.Enabled = false
	cfg.Crawler.Snapshots = false
	cfg.PubSub = config.PubSubConfig{}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			rt.logger.Warn("close services failed", zap.Error(cerr))
		}
	}()

	var w io.Writer = cmd.OutOrStdout()
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", out, cerr)
			}
		}()
		w = f
	}

	n, err := export.Write(ctx, a.Activities, format, w)
	if err != nil {
		return err
	}
	rt.logger.Info("export complete", zap.Int("activities", n), zap.String("format", string(format)), zap.String("out", out))
	return nil
}
