package cmd

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"go.universe.tf/pupiltrack/internal/roi"
)

func newROICommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roi",
		Short: "Inspect or change the persisted region of interest",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the region of interest",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r := roi.Load(a.cfg.ROIFile, a.log).Rect()
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"File", "X", "Y", "Width", "Height"})
				t.AppendRow(table.Row{a.cfg.ROIFile, r.X, r.Y, r.W, r.H})
				t.Render()
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the default region of interest " + roi.Default.String(),
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return roi.Load(a.cfg.ROIFile, a.log).Reset()
			},
		},
		&cobra.Command{
			Use:   "set <x> <y> <width> <height>",
			Short: "Replace the region of interest",
			Args:  cobra.ExactArgs(4),
			RunE: func(_ *cobra.Command, args []string) error {
				var v [4]int
				for i, arg := range args {
					n, err := strconv.Atoi(arg)
					if err != nil {
						return fmt.Errorf("argument %d: %w", i+1, err)
					}
					v[i] = n
				}
				return roi.Load(a.cfg.ROIFile, a.log).Set(roi.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]})
			},
		},
	)
	return cmd
}
