package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/kidssmart/internal/spider"
)

func newSpidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spiders",
		Short: "Lists the registered spiders and their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			reg := spider.Default(rt.cfg.Spiders)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Description", "Schedule"})
			for _, s := range reg.All() {
				schedule := rt.cfg.Schedule.Spiders[s.Name()]
				if schedule == "" {
					schedule = "-"
				}
				t.AppendRow(table.Row{s.Name(), s.Description(), schedule})
			}
			t.Render()
			return nil
		},
	}
}
