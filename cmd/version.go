package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/bladekit/internal/version"
)

func newVersionCmd() *cobra.Command {
	var (
		format   string
		short    bool
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			switch {
			case format == "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(version.GetBuildInfo())
			case short:
				_, err := fmt.Fprintln(out, version.GetShortVersion())
				return err
			case detailed:
				_, err := fmt.Fprintln(out, version.GetDetailedVersion())
				return err
			default:
				_, err := fmt.Fprintf(out, "bladekit %s\n", version.GetVersion())
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().BoolVar(&short, "short", false, "show short version only")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "show detailed build information")
	AddFlagValidation(cmd.Flags(), "format", func(format string) error {
		return ValidateFormat(format, []string{"text", "json"})
	})

	return cmd
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
