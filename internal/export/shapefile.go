// Package export writes assessed samples to GIS formats.
package export

import (
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/model"
)

// Attribute columns of the exported point layer, in DBF order.
const (
	FieldSampleID = "SAMPLE_ID"
	FieldSource   = "SOURCE"
	FieldHPI      = "HPI"
	FieldHEI      = "HEI"
	FieldMI       = "MI"
	FieldIGeoMax  = "IGEO_MAX"
	FieldHIAdult  = "HI_ADULT"
	FieldHIChild  = "HI_CHILD"
	FieldCategory = "CATEGORY"
	FieldIsSafe   = "IS_SAFE"
)

func field(name string, typ byte, size, precision uint8) shp.Field {
	f := shp.Field{Fieldtype: typ, Size: size, Precision: precision}
	copy(f.Name[:], name)
	return f
}

// Fields returns the DBF schema of the exported layer.
func Fields() []shp.Field {
	return []shp.Field{
		shp.StringField(FieldSampleID, 36),
		shp.StringField(FieldSource, 24),
		field(FieldHPI, 'N', 14, 4),
		field(FieldHEI, 'N', 14, 4),
		field(FieldMI, 'N', 14, 4),
		field(FieldIGeoMax, 'N', 14, 4),
		field(FieldHIAdult, 'N', 14, 6),
		field(FieldHIChild, 'N', 14, 6),
		shp.StringField(FieldCategory, 24),
		field(FieldIsSafe, 'L', 1, 0),
	}
}

// WriteShapefile writes one POINT per assessed sample to path (.shp, with
// .shx and .dbf siblings). Samples without an assessment are skipped. It
// returns the number of features written.
func WriteShapefile(path string, samples []model.AssessedSample) (int, error) {
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		path += ".shp"
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s", path)
	}
	defer w.Close()

	if err := w.SetFields(Fields()); err != nil {
		return 0, eris.Wrap(err, "export: set fields")
	}

	n := 0
	for _, as := range samples {
		s, a := as.Sample, as.Assessment
		if a == nil {
			continue
		}

		row := int(w.Write(&shp.Point{X: s.Location.Longitude, Y: s.Location.Latitude}))
		safe := "F"
		if a.IsSafe {
			safe = "T"
		}
		values := []any{
			s.ID, string(s.SourceType),
			a.HPI, a.HEI, a.MI, a.IGeoMax,
			a.HazardIndexAdult, a.HazardIndexChild,
			string(a.Category), safe,
		}
		for i, v := range values {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return n, eris.Wrapf(err, "export: write attribute %d of sample %s", i, s.ID)
			}
		}
		n++
	}

	zap.L().Info("shapefile written",
		zap.String("path", path),
		zap.Int("features", n),
		zap.Int("skipped", len(samples)-n),
	)
	return n, nil
}
