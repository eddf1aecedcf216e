package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/app"
	"github.com/JakeFAU/kidssmart/internal/config"
	"github.com/JakeFAU/kidssmart/internal/spider"
)

const testConfig = `
logging:
  development: false
  level: error
headless:
  enabled: false
session:
  secret: cmd-test-secret-0123456789
schedule:
  spiders:
    soccer5s: "0 3 * * *"
`

type stubSpider struct {
	name  string
	items []activity.Activity
	err   error
}

func (s stubSpider) Name() string        { return s.name }
func (s stubSpider) Description() string { return "stub " + s.name }

func (s stubSpider) Run(ctx context.Context, _ spider.Env, emit spider.Emit) error {
	for _, a := range s.items {
		if err := emit(ctx, a); err != nil {
			return err
		}
	}
	return s.err
}

// withApp swaps the service factory so the built App gets prepare applied.
func withApp(t *testing.T, prepare func(t *testing.T, a *app.App)) {
	t.Helper()
	orig := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		a, err := orig(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		prepare(t, a)
		return a, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o600))

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSpidersListsRegistryWithSchedules(t *testing.T) {
	out, _, err := run(t, "spiders")
	require.NoError(t, err)
	require.Contains(t, out, "soccer5s")
	require.Contains(t, out, "0 3 * * *")
	require.Contains(t, out, "kidspot_art")
	require.Contains(t, out, "western_suburbs")
}

func TestCrawlDryRunPrintsItems(t *testing.T) {
	withApp(t, func(t *testing.T, a *app.App) {
		require.NoError(t, a.Spiders.Register(stubSpider{name: "stub", items: []activity.Activity{
			{Title: "Junior Chess", SourceName: "stub"},
		}}))
	})

	out, errOut, err := run(t, "crawl", "stub", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, `"spider":"stub"`)
	require.Contains(t, out, "Junior Chess")
	require.Contains(t, errOut, "succeeded")
}

func TestCrawlReportsFailedRuns(t *testing.T) {
	withApp(t, func(t *testing.T, a *app.App) {
		require.NoError(t, a.Spiders.Register(stubSpider{name: "broken", err: errors.New("site down")}))
	})

	_, errOut, err := run(t, "crawl", "broken")
	require.ErrorContains(t, err, "1 of 1 runs did not succeed: broken")
	require.Contains(t, errOut, "site down")
}

func TestCrawlArgumentErrors(t *testing.T) {
	cases := map[string][]string{
		"name at least one spider": {"crawl"},
		"not both":                 {"crawl", "--all", "soccer5s"},
		`unknown spider "nope"`:    {"crawl", "nope"},
	}
	for want, args := range cases {
		_, _, err := run(t, args...)
		require.ErrorContains(t, err, want)
	}
}

func TestSelectSpidersDeduplicates(t *testing.T) {
	t.Parallel()

	reg := spider.NewRegistry()
	require.NoError(t, reg.Register(stubSpider{name: "b"}))
	require.NoError(t, reg.Register(stubSpider{name: "a"}))

	names, err := selectSpiders(reg, []string{"b", "a", "b"}, false)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, names)

	names, err = selectSpiders(reg, nil, true)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names)
}

func TestExportInfersFormatFromExtension(t *testing.T) {
	withApp(t, func(t *testing.T, a *app.App) {
		_, _, err := a.Activities.SaveActivity(context.Background(), activity.Activity{
			Title: "Toddler Gym", SourceName: "stub", Suburb: "Footscray",
		})
		require.NoError(t, err)
	})

	path := filepath.Join(t.TempDir(), "activities.json")
	_, _, err := run(t, "export", "--out", path)
	require.NoError(t, err)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), `"title": "Toddler Gym"`)
}

func TestExportCSVToStdout(t *testing.T) {
	out, _, err := run(t, "export")
	require.NoError(t, err)
	require.Contains(t, out, "id,title,description")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	_, _, err := run(t, "export", "--format", "parquet")
	require.ErrorContains(t, err, "unknown export format")
}

type fakeMigrator struct {
	calls   []string
	steps   int
	version uint
	dirty   bool
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return nil
}

func (f *fakeMigrator) Down(steps int) error {
	f.calls = append(f.calls, "down")
	f.steps = steps
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, nil }

func (f *fakeMigrator) Close() error {
	f.calls = append(f.calls, "close")
	return nil
}

func withMigratorFake(t *testing.T, fake *fakeMigrator) {
	t.Helper()
	orig := newMigrator
	newMigrator = func(string, *zap.Logger) (migrator, error) { return fake, nil }
	t.Cleanup(func() { newMigrator = orig })
}

func TestMigrateCommands(t *testing.T) {
	fake := &fakeMigrator{version: 3, dirty: true}
	withMigratorFake(t, fake)

	_, _, err := run(t, "migrate", "up")
	require.NoError(t, err)
	_, _, err = run(t, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	require.Equal(t, 2, fake.steps)
	out, _, err := run(t, "migrate", "version")
	require.NoError(t, err)
	require.Equal(t, "version 3 (dirty)\n", out)
	require.Equal(t, []string{"up", "close", "down", "close", "close"}, fake.calls)
}

func TestMigrateRequiresDSN(t *testing.T) {
	_, _, err := run(t, "migrate", "up")
	require.ErrorContains(t, err, "db.dsn is required")
}

func TestMissingConfigFileFails(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "spiders"})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "read config")
}
