package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/units"
)

// Record is one sample assembled from the sheet rows sharing a sample_ref.
type Record struct {
	Ref   string
	Line  int // first row of the sample
	Input model.SampleInput
}

// RowError reports a row that could not be read.
type RowError struct {
	Line int
	Ref  string
	Err  error
}

func (e *RowError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("line %d (%s): %v", e.Line, e.Ref, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Sheet is the parsed content of a measurement sheet.
type Sheet struct {
	Records []Record
	Errors  []RowError
}

const (
	colRef           = "sample_ref"
	colLatitude      = "latitude"
	colLongitude     = "longitude"
	colSampledAt     = "sampled_at"
	colSourceType    = "source_type"
	colStandard      = "standard"
	colLocationName  = "location_name"
	colMetal         = "metal"
	colConcentration = "concentration"
	colUnit          = "unit"
)

var requiredColumns = []string{colRef, colLatitude, colLongitude, colMetal, colConcentration}

var columnAliases = map[string]string{
	"lat":      colLatitude,
	"lon":      colLongitude,
	"lng":      colLongitude,
	"symbol":   colMetal,
	"source":   colSourceType,
	"location": colLocationName,
}

func canonicalColumn(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	if c, ok := columnAliases[h]; ok {
		return c
	}
	return h
}

type grouper struct {
	cols  map[string]int
	order []string
	byRef map[string]*Record
	errs  []RowError
}

func newGrouper(header []string) (*grouper, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		c := canonicalColumn(h)
		if c == "" {
			continue
		}
		if _, dup := cols[c]; dup {
			return nil, eris.Errorf("ingest: duplicate column %q", c)
		}
		cols[c] = i
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("ingest: missing columns: %s", strings.Join(missing, ", "))
	}

	return &grouper{cols: cols, byRef: make(map[string]*Record)}, nil
}

func (g *grouper) get(row []string, col string) string {
	i, ok := g.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}

func (g *grouper) add(line int, row []string) {
	if blank(row) {
		return
	}
	ref := g.get(row, colRef)
	if err := g.addRow(ref, line, row); err != nil {
		g.errs = append(g.errs, RowError{Line: line, Ref: ref, Err: err})
	}
}

func (g *grouper) addRow(ref string, line int, row []string) error {
	if ref == "" {
		return eris.New("sample_ref is required")
	}

	lat, err := parseFloat(g.get(row, colLatitude), colLatitude)
	if err != nil {
		return err
	}
	lon, err := parseFloat(g.get(row, colLongitude), colLongitude)
	if err != nil {
		return err
	}
	conc, err := parseFloat(g.get(row, colConcentration), colConcentration)
	if err != nil {
		return err
	}
	symbol := g.get(row, colMetal)
	if symbol == "" {
		return eris.New("metal is required")
	}
	m := units.Measurement{Symbol: symbol, Concentration: conc, Unit: g.get(row, colUnit)}

	if rec, ok := g.byRef[ref]; ok {
		if rec.Input.Latitude != lat || rec.Input.Longitude != lon {
			return eris.Errorf("location differs from line %d", rec.Line)
		}
		rec.Input.Measurements = append(rec.Input.Measurements, m)
		return nil
	}

	in := model.SampleInput{
		Latitude:           lat,
		Longitude:          lon,
		LocationName:       g.get(row, colLocationName),
		SourceType:         parseSourceType(g.get(row, colSourceType)),
		StandardPreference: model.StandardPreference(strings.ToUpper(g.get(row, colStandard))),
		Measurements:       []units.Measurement{m},
	}
	if v := g.get(row, colSampledAt); v != "" {
		ts, err := parseTime(v)
		if err != nil {
			return err
		}
		in.SampledAt = &ts
	}

	g.order = append(g.order, ref)
	g.byRef[ref] = &Record{Ref: ref, Line: line, Input: in}
	return nil
}

func (g *grouper) sheet() *Sheet {
	s := &Sheet{Records: make([]Record, 0, len(g.order)), Errors: g.errs}
	for _, ref := range g.order {
		s.Records = append(s.Records, *g.byRef[ref])
	}
	return s
}

func parseFloat(v, col string) (float64, error) {
	if v == "" {
		return 0, eris.Errorf("%s is required", col)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, eris.Errorf("%s %q is not a number", col, v)
	}
	return f, nil
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(v string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sampled_at %q is not RFC3339 or YYYY-MM-DD", v)
}

// parseSourceType matches the accepted source types case-insensitively and
// returns anything else unchanged for validation to reject.
func parseSourceType(v string) model.SourceType {
	for _, st := range model.SourceTypes() {
		if strings.EqualFold(v, string(st)) {
			return st
		}
	}
	return model.SourceType(v)
}
