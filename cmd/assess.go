package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/metalsense/internal/engine"
	"github.com/sells-group/metalsense/internal/units"
)

var (
	assessMetals []string
	assessFile   string
	assessFormat string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess one sample and print the result",
	Long: "Runs the engine once over measurements given as --metal flags (e.g. --metal Pb=0.02mg/L " +
		"--metal Cu=980ug/L) or read from a JSON/YAML file with a measurements list.",
	Example: "  metalsense assess --metal As=0.02mg/L --metal Pb=10ug/L\n" +
		"  metalsense assess --file sample.yaml --format yaml",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var ms []units.Measurement
		switch {
		case assessFile != "" && len(assessMetals) > 0:
			return eris.New("use either --metal or --file, not both")
		case assessFile != "":
			var err error
			if ms, err = readMeasurementsFile(assessFile); err != nil {
				return err
			}
		case len(assessMetals) > 0:
			for _, v := range assessMetals {
				m, err := parseMetalFlag(v)
				if err != nil {
					return err
				}
				ms = append(ms, m)
			}
		default:
			return eris.New("at least one --metal or a --file is required")
		}

		eng, err := initEngine()
		if err != nil {
			return err
		}
		return runAssess(cmd.OutOrStdout(), eng, ms, assessFormat)
	},
}

func runAssess(out io.Writer, eng *engine.Engine, ms []units.Measurement, format string) error {
	res, err := eng.AssessMeasurements(ms)
	if err != nil {
		return eris.Wrap(err, "assess")
	}
	return writeFormatted(out, res, format)
}

// parseMetalFlag parses SYMBOL=VALUE[UNIT], for example Pb=0.02mg/L or
// Cu=980 µg/L. A missing unit means mg/L.
func parseMetalFlag(v string) (units.Measurement, error) {
	symbol, rest, ok := strings.Cut(v, "=")
	symbol = strings.TrimSpace(symbol)
	rest = strings.TrimSpace(rest)
	if !ok || symbol == "" || rest == "" {
		return units.Measurement{}, eris.Errorf("invalid --metal %q: want SYMBOL=VALUE[UNIT]", v)
	}

	end := strings.IndexFunc(rest, func(r rune) bool {
		return !unicode.IsDigit(r) && !strings.ContainsRune(".eE+-", r)
	})
	if end < 0 {
		end = len(rest)
	}
	value, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return units.Measurement{}, eris.Errorf("invalid --metal %q: bad concentration %q", v, rest[:end])
	}

	return units.Measurement{
		Symbol:        symbol,
		Concentration: value,
		Unit:          strings.TrimSpace(rest[end:]),
	}, nil
}

type measurementsFile struct {
	Measurements []units.Measurement `json:"measurements" yaml:"measurements"`
}

func readMeasurementsFile(path string) ([]units.Measurement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var f measurementsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	if len(f.Measurements) == 0 {
		return nil, eris.Errorf("%s has no measurements", path)
	}
	return f.Measurements, nil
}

// writeFormatted prints v as indented JSON or as YAML with the JSON field
// names.
func writeFormatted(out io.Writer, v any, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "encode result")
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return eris.Wrap(err, "encode result")
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func init() {
	assessCmd.Flags().StringArrayVar(&assessMetals, "metal", nil, "measurement as SYMBOL=VALUE[UNIT], repeatable")
	assessCmd.Flags().StringVar(&assessFile, "file", "", "JSON or YAML file with a measurements list")
	assessCmd.Flags().StringVar(&assessFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(assessCmd)
}
