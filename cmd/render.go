package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var (
		dataFile string
		sets     []string
	)

	cmd := &cobra.Command{
		Use:   "render <view>",
		Short: "Render a view to stdout",
		Long: `Render a view by name using dot notation or a namespace hint.

Examples:
  bladekit render home
  bladekit render users.profile --data user.yaml
  bladekit render mail::welcome --set name=Ada
  echo '{"items":[1,2]}' | bladekit render list --data -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			data, err := loadData(dataFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := applySets(data, sets); err != nil {
				return err
			}

			views := newViews(cfg, logger)
			output, err := views.Render(args[0], data)
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), output)
			return err
		},
	}

	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "data file (.json, .yaml, .yml, .toml, or - for JSON on stdin)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "set a data value (key=value, dotted keys nest)")

	return cmd
}

func init() {
	rootCmd.AddCommand(newRenderCmd())
}
