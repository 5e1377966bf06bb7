package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/ingest"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/store"
	"github.com/sells-group/metalsense/internal/worker"
)

var (
	importFile        string
	importAssess      bool
	importConcurrency int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import samples from CSV or XLSX",
	Long: "Reads a measurement sheet with one row per metal reading. Rows sharing sample_ref form one sample. " +
		"With --assess every stored sample is assessed before the command returns.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var assessor *worker.Assessor
		if importAssess {
			eng, err := initEngine()
			if err != nil {
				return err
			}
			assessor = initAssessor(st, eng)
		}

		res, err := runImport(ctx, st, assessor, importFile, importConcurrency)
		if err != nil {
			return err
		}
		formatImportResult(cmd.ErrOrStderr(), res)
		return nil
	},
}

// importResult summarizes an import run.
type importResult struct {
	Created  []ingest.Loaded
	Errors   []ingest.RowError
	Assessed int
	Unsafe   int
}

// runImport loads path into st. A non-nil assessor bulk-assesses the stored
// samples afterwards.
func runImport(ctx context.Context, st store.Store, assessor *worker.Assessor, path string, concurrency int) (*importResult, error) {
	sheet, err := ingest.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var stored []*model.Sample
	opts := ingest.LoadOptions{Concurrency: concurrency}
	if assessor != nil {
		opts.AfterCreate = func(_ context.Context, s *model.Sample) error {
			mu.Lock()
			stored = append(stored, s)
			mu.Unlock()
			return nil
		}
	}

	loaded, err := ingest.Load(ctx, st, sheet, opts)
	if err != nil {
		return nil, eris.Wrap(err, "import")
	}
	res := &importResult{Created: loaded.Created, Errors: loaded.Errors}

	zap.L().Info("import complete",
		zap.String("file", path),
		zap.Int("created", len(loaded.Created)),
		zap.Int("rejected", len(loaded.Errors)),
	)

	if assessor == nil || len(stored) == 0 {
		return res, nil
	}

	as, err := assessor.AssessBatch(ctx, stored)
	if err != nil {
		return nil, eris.Wrap(err, "import: assess")
	}
	res.Assessed = len(as)
	for _, a := range as {
		if !a.IsSafe {
			res.Unsafe++
		}
	}
	return res, nil
}

func formatImportResult(out io.Writer, res *importResult) {
	_, _ = fmt.Fprintf(out, "Imported %d sample(s), rejected %d row group(s).\n", len(res.Created), len(res.Errors))
	for _, e := range res.Errors {
		_, _ = fmt.Fprintf(out, "  %s\n", e.Error())
	}
	if res.Assessed > 0 {
		_, _ = fmt.Fprintf(out, "Assessed %d sample(s), %d unsafe.\n", res.Assessed, res.Unsafe)
	}
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to .csv or .xlsx sheet (required)")
	importCmd.Flags().BoolVar(&importAssess, "assess", false, "assess imported samples immediately")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 4, "parallel sample inserts")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
