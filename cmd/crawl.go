package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/config"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/id/uuid"
	"github.com/JakeFAU/kidssmart/internal/spider"
)

type crawlOptions struct {
	all     bool
	dryRun  bool
	migrate bool
	timeout time.Duration
}

func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl [spider...]",
		Short: "Runs spiders synchronously",
		Long: `Runs the named spiders one after another in this process and prints a
summary of each run. With --dry-run the normalized items are printed as JSON
lines and nothing is stored or published.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.all, "all", false, "run every registered spider")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print items as JSON lines instead of saving them")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending migrations first")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "per-run timeout (default crawler.run_timeout)")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string, opts crawlOptions) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	if opts.timeout > 0 {
		cfg.Crawler.RunTimeout = opts.timeout
	}
	if opts.dryRun {
		// Nothing leaves the process on a dry run.
		cfg.DB = config.DBConfig{}
		cfg.PubSub = config.PubSubConfig{}
		cfg.Redis.Address = ""
	} else if opts.migrate {
		if err := autoMigrate(rt); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			rt.logger.Warn("close services failed", zap.Error(cerr))
		}
	}()

	names, err := selectSpiders(a.Spiders, args, opts.all)
	if err != nil {
		return err
	}

	// The CLI does not serve /metrics, so progress collectors stay private.
	hub, err := a.NewHub(prometheus.NewRegistry(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = hub.Close(context.WithoutCancel(ctx)) }()

	var items io.Writer
	if opts.dryRun {
		items = cmd.OutOrStdout()
	}
	w := a.NewWorker(nil, a.Pipeline(hub, items), hub, 0)
	ids := uuid.New()

	var runs []crawler.Run
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		id, err := ids.NewID()
		if err != nil {
			return fmt.Errorf("new run id: %w", err)
		}
		run, err := w.Execute(ctx, crawler.RunRequest{
			RunID:     id,
			Spider:    name,
			Trigger:   crawler.TriggerCLI,
			Attempt:   1,
			Submitted: a.Clock.Now().Unix(),
		})
		if err != nil {
			return err
		}
		runs = append(runs, run)
	}
	renderRuns(cmd.ErrOrStderr(), runs)

	var failed []string
	for _, run := range runs {
		if run.Status != crawler.RunStatusSucceeded {
			failed = append(failed, run.Spider)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d runs did not succeed: %s", len(failed), len(names), strings.Join(failed, ", "))
	}
	if len(runs) < len(names) {
		return fmt.Errorf("crawl interrupted: %w", context.Cause(ctx))
	}
	return nil
}

// selectSpiders resolves the command arguments against the registry.
func selectSpiders(reg *spider.Registry, args []string, all bool) ([]string, error) {
	switch {
	case all && len(args) > 0:
		return nil, errors.New("pass spider names or --all, not both")
	case all:
		return reg.Names(), nil
	case len(args) == 0:
		return nil, fmt.Errorf("name at least one spider or pass --all (available: %s)", strings.Join(reg.Names(), ", "))
	}
	seen := make(map[string]bool, len(args))
	names := make([]string, 0, len(args))
	for _, name := range args {
		if !reg.Has(name) {
			return nil, fmt.Errorf("unknown spider %q (available: %s)", name, strings.Join(reg.Names(), ", "))
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

func renderRuns(out io.Writer, runs []crawler.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Spider", "Status", "Scraped", "Saved", "Duplicate", "Dropped", "Failed", "Duration", "Error"})
	for _, run := range runs {
		var took time.Duration
		if run.FinishedAt != nil {
			took = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)
		}
		t.AppendRow(table.Row{
			run.Spider,
			run.Status,
			run.Counters.ItemsScraped,
			run.Counters.ItemsSaved,
			run.Counters.ItemsDuplicate,
			run.Counters.ItemsDropped,
			run.Counters.ItemsFailed,
			took,
			run.ErrorText,
		})
	}
	t.Render()
}
