package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/export"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/store"
)

// exportPageSize is the number of samples read per store query.
const exportPageSize = 500

var (
	exportOut    string
	exportStatus string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export assessed samples as an ESRI shapefile",
	Long:  "Writes a POINT shapefile (.shp/.shx/.dbf) with one feature per assessed sample for GIS mapping.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := runExport(ctx, st, exportOut, model.SampleStatus(exportStatus))
		if err != nil {
			return err
		}

		zap.L().Info("export complete", zap.String("out", exportOut), zap.Int("features", n))
		return nil
	},
}

// runExport writes every sample with the given status that has an
// assessment to path and returns the feature count.
func runExport(ctx context.Context, st store.Store, path string, status model.SampleStatus) (int, error) {
	var rows []model.AssessedSample
	for offset := 0; ; offset += exportPageSize {
		samples, err := st.ListSamples(ctx, store.SampleFilter{
			Status: status,
			Limit:  exportPageSize,
			Offset: offset,
		})
		if err != nil {
			return 0, eris.Wrap(err, "export: list samples")
		}

		for _, smp := range samples {
			a, err := st.GetAssessment(ctx, smp.ID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return 0, eris.Wrapf(err, "export: assessment for %s", smp.ID)
			}
			rows = append(rows, model.AssessedSample{Sample: smp, Assessment: a})
		}

		if len(samples) < exportPageSize {
			break
		}
	}

	return export.WriteShapefile(path, rows)
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "samples.shp", "output shapefile path")
	exportCmd.Flags().StringVar(&exportStatus, "status", string(model.SampleStatusComplete), "sample status to export (empty for all)")
	rootCmd.AddCommand(exportCmd)
}
