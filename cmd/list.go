package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/bladekit/pkg/blade"
)

// viewEntry is one row of the list output.
type viewEntry struct {
	Name   string `json:"name" yaml:"name"`
	Path   string `json:"path" yaml:"path"`
	Engine string `json:"engine" yaml:"engine"`
}

func newListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the views found under the view paths",
		Long: `List every view the finder can resolve together with the file it
resolves to and the engine that renders it.

Examples:
  bladekit list
  bladekit list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			entries, err := listViews(newViews(cfg, logger))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return outputJSON(out, entries)
			case "yaml":
				return outputYAML(out, entries)
			default:
				return outputTable(out, entries)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json, yaml)")
	AddFlagValidation(cmd.Flags(), "format", func(format string) error {
		return ValidateFormat(format, []string{"table", "json", "yaml"})
	})

	return cmd
}

func listViews(views *blade.View) ([]viewEntry, error) {
	names, err := views.Finder().Views()
	if err != nil {
		return nil, err
	}

	entries := make([]viewEntry, 0, len(names))
	for _, name := range names {
		path, err := views.FindView(name)
		if err != nil {
			return nil, err
		}
		engine, ok := views.EngineName(path)
		if !ok {
			engine = "-"
		}
		entries = append(entries, viewEntry{Name: name, Path: path, Engine: engine})
	}
	return entries, nil
}

func outputJSON(w io.Writer, entries []viewEntry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

func outputYAML(w io.Writer, entries []viewEntry) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(entries); err != nil {
		return err
	}
	return encoder.Close()
}

func outputTable(w io.Writer, entries []viewEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No views found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENGINE\tPATH")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Name, entry.Engine, entry.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nTotal views: %d\n", len(entries))
	return err
}

func init() {
	rootCmd.AddCommand(newListCmd())
}
