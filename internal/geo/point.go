// Package geo validates and encodes sample coordinates.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is the spatial reference of every stored point (WGS84).
const SRID = 4326

type constError string

func (e constError) Error() string { return string(e) }

// Coordinate errors.
var (
	ErrLatitudeRange  = constError("latitude must be between -90 and 90")
	ErrLongitudeRange = constError("longitude must be between -180 and 180")
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Validate checks that p lies within the WGS84 coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return ErrLatitudeRange
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return ErrLongitudeRange
	}
	return nil
}

// EncodePoint returns p as little-endian EWKB with SRID 4326.
func EncodePoint(p Point) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	g := geom.NewPointFlat(geom.XY, []float64{p.Longitude, p.Latitude}).SetSRID(SRID)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

// DecodePoint parses EWKB produced by EncodePoint or by PostGIS.
func DecodePoint(data []byte) (Point, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Point{}, eris.Wrap(err, "geo: decode EWKB")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return Point{}, eris.Errorf("geo: expected point, got %T", g)
	}
	if srid := pt.SRID(); srid != 0 && srid != SRID {
		return Point{}, eris.Errorf("geo: unexpected SRID %d", srid)
	}
	return Point{Latitude: pt.Y(), Longitude: pt.X()}, nil
}

// BBox is a latitude/longitude bounding box. It does not wrap the antimeridian.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// ParseBBox parses "minLat,minLon,maxLat,maxLon".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Errorf("geo: bbox needs 4 values, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, eris.Wrapf(err, "geo: bbox value %q", p)
		}
		vals[i] = v
	}
	b := BBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	return b, b.Validate()
}

// Validate checks corner ranges and ordering.
func (b BBox) Validate() error {
	if err := (Point{Latitude: b.MinLat, Longitude: b.MinLon}).Validate(); err != nil {
		return err
	}
	if err := (Point{Latitude: b.MaxLat, Longitude: b.MaxLon}).Validate(); err != nil {
		return err
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return eris.New("geo: bbox minimum exceeds maximum")
	}
	return nil
}

// Contains reports whether p lies inside b, edges included.
func (b BBox) Contains(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}
