package ingest

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/metalsense/internal/model"
)

// SampleCreator persists validated samples.
type SampleCreator interface {
	CreateSample(ctx context.Context, s *model.Sample) error
}

// LoadOptions configures Load.
type LoadOptions struct {
	Concurrency int              // parallel inserts; default 4
	Now         func() time.Time // default time.Now

	// AfterCreate runs for each stored sample, for example to assess it.
	// Its error is reported against the record without stopping the load.
	AfterCreate func(ctx context.Context, s *model.Sample) error
}

// Loaded pairs a sheet reference with the stored sample ID.
type Loaded struct {
	Ref      string `json:"sample_ref"`
	SampleID string `json:"sample_id"`
}

// LoadResult summarizes a Load call.
type LoadResult struct {
	Created []Loaded
	Errors  []RowError
}

// Load validates each record, stores the valid ones with bounded
// concurrency and reports invalid records as RowErrors. A store failure
// aborts the load.
func Load(ctx context.Context, st SampleCreator, sheet *Sheet, opts LoadOptions) (*LoadResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	log := zap.L().With(zap.String("component", "ingest"))
	created := make([]*Loaded, len(sheet.Records))

	var mu sync.Mutex
	rowErrs := append([]RowError(nil), sheet.Errors...)
	report := func(rec Record, err error) {
		mu.Lock()
		rowErrs = append(rowErrs, RowError{Line: rec.Line, Ref: rec.Ref, Err: err})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, rec := range sheet.Records {
		g.Go(func() error {
			smp, err := rec.Input.NewSample(opts.Now())
			if err != nil {
				report(rec, err)
				return nil
			}
			if err := st.CreateSample(gctx, smp); err != nil {
				return eris.Wrapf(err, "ingest: store sample %s", rec.Ref)
			}
			created[i] = &Loaded{Ref: rec.Ref, SampleID: smp.ID}
			log.Debug("sample stored", zap.String("sample_ref", rec.Ref), zap.String("sample_id", smp.ID))

			if opts.AfterCreate != nil {
				if err := opts.AfterCreate(gctx, smp); err != nil {
					report(rec, err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(rowErrs, func(a, b RowError) int { return cmp.Compare(a.Line, b.Line) })
	res := &LoadResult{Errors: rowErrs}
	for _, l := range created {
		if l != nil {
			res.Created = append(res.Created, *l)
		}
	}
	log.Info("sheet loaded",
		zap.Int("records", len(sheet.Records)),
		zap.Int("created", len(res.Created)),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}
