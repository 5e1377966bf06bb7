package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metalsense/internal/geo"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/store"
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "Inspect stored samples",
	Long:  "Commands for listing and viewing samples and their assessments.",
}

// -- samples list --

var samplesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List samples",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source-type")
		bbox, _ := cmd.Flags().GetString("bbox")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.SampleFilter{
			Status:     model.SampleStatus(status),
			SourceType: model.SourceType(source),
			Limit:      limit,
		}
		if bbox != "" {
			bb, err := geo.ParseBBox(bbox)
			if err != nil {
				return err
			}
			filter.BBox = &bb
		}

		samples, err := st.ListSamples(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "samples list")
		}

		if len(samples) == 0 {
			fmt.Fprintln(os.Stderr, "No samples found.")
			return nil
		}

		formatSamplesList(cmd.OutOrStdout(), samples)
		return nil
	},
}

// -- samples show --

var samplesShowCmd = &cobra.Command{
	Use:   "show <sample-id>",
	Short: "Show a sample with its assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		format, _ := cmd.Flags().GetString("format")
		return showSample(ctx, cmd.OutOrStdout(), st, args[0], format)
	},
}

func showSample(ctx context.Context, out io.Writer, st store.Store, id, format string) error {
	smp, err := st.GetSample(ctx, id)
	if err != nil {
		return eris.Wrap(err, "samples show")
	}

	as := model.AssessedSample{Sample: *smp}
	a, err := st.GetAssessment(ctx, id)
	switch {
	case err == nil:
		as.Assessment = a
	case !errors.Is(err, store.ErrNotFound):
		return eris.Wrap(err, "samples show")
	}

	return writeFormatted(out, as, format)
}

// formatSamplesList writes a tabular list of samples to out.
func formatSamplesList(out io.Writer, samples []model.Sample) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tLAT\tLON\tMETALS\tSTATUS\tSAMPLED")
	_, _ = fmt.Fprintln(w, "--\t------\t---\t---\t------\t------\t-------")

	for _, s := range samples {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.5f\t%.5f\t%d\t%s\t%s\n",
			truncateID(s.ID),
			s.SourceType,
			s.Location.Latitude,
			s.Location.Longitude,
			len(s.Measurements),
			s.Status,
			s.SampledAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	samplesListCmd.Flags().String("status", "", "filter by status (pending, assessing, complete, failed)")
	samplesListCmd.Flags().String("source-type", "", "filter by source type")
	samplesListCmd.Flags().String("bbox", "", "bounding box min_lat,min_lon,max_lat,max_lon")
	samplesListCmd.Flags().Int("limit", 50, "max number of samples to display")

	samplesShowCmd.Flags().String("format", "json", "output format: json or yaml")

	samplesCmd.AddCommand(samplesListCmd)
	samplesCmd.AddCommand(samplesShowCmd)
	rootCmd.AddCommand(samplesCmd)
}
