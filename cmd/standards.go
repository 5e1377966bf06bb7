package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/metalsense/internal/standards"
)

var (
	standardsFile   string
	standardsCheck  bool
	standardsFormat string
)

var standardsCmd = &cobra.Command{
	Use:   "standards",
	Short: "Print or validate the reference tables",
	Long: "Prints the permissible limits, background values, toxicity factors and exposure profiles in use. " +
		"The YAML output can be edited and loaded back through standards.path.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := standardsFile
		if path == "" {
			path = cfg.Standards.Path
		}
		return runStandards(cmd.OutOrStdout(), path, standardsCheck, standardsFormat)
	},
}

func runStandards(out io.Writer, path string, check bool, format string) error {
	reg, err := loadRegistry(path)
	if err != nil {
		return err
	}

	if check {
		if err := reg.Validate(); err != nil {
			return err
		}
		source := path
		if source == "" {
			source = "built-in"
		}
		_, _ = fmt.Fprintf(out, "%s: ok (version %s, %d metals, %d profiles)\n",
			source, reg.Version(), len(reg.Metals()), len(standards.Demographics()))
		return nil
	}

	if format == "yaml" || format == "" {
		return reg.WriteYAML(out)
	}
	return writeFormatted(out, reg.Tables(), format)
}

func init() {
	standardsCmd.Flags().StringVar(&standardsFile, "file", "", "tables file to read instead of standards.path")
	standardsCmd.Flags().BoolVar(&standardsCheck, "check", false, "validate the tables and exit")
	standardsCmd.Flags().StringVar(&standardsFormat, "format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(standardsCmd)
}
