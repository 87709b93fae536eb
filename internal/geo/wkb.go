package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is the spatial reference of stored property points (WGS 84).
const SRID = 4326

// EncodePoint returns the little-endian EWKB of a lon/lat point with SRID 4326.
func EncodePoint(lat, lon float64) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point")
	}
	return data, nil
}

// DecodePoint is the inverse of EncodePoint.
func DecodePoint(data []byte) (lat, lon float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geo: decode point")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("geo: decode point: got %T", g)
	}
	return pt.Y(), pt.X(), nil
}

// PropertyPoint encodes a point for lat/lon when both are set, nil otherwise.
func PropertyPoint(lat, lon *float64) []byte {
	if lat == nil || lon == nil {
		return nil
	}
	data, err := EncodePoint(*lat, *lon)
	if err != nil {
		return nil
	}
	return data
}
