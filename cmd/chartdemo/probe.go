package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/chart/backend"
)

func newProbeCmd(_ *globalFlags) *cobra.Command {
	var tier string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print the backend the chart core would select",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := backend.ParseKind(tier)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			sel, err := backend.Select(backend.WithKind(kind))
			if err != nil {
				fmt.Fprintln(out, backend.KindNone)
				return err
			}
			defer sel.Release()

			info := sel.Adapter.Info
			fmt.Fprintln(out, sel.Kind)
			fmt.Fprintf(out, "  variant: %s\n  adapter: %s (%s)\n  driver:  %s %s\n  formats: %v\n",
				sel.Variant, info.Name, info.DeviceType, info.Driver, info.DriverInfo, sel.Strategy.PreferredFormats())
			return nil
		},
	}
	cmd.Flags().StringVar(&tier, "backend", "auto", "Restrict probing to one tier: auto, webgpu or webgl")
	return cmd
}
