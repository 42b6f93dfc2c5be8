package handlers

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/btraven00/geoextent/internal/logging"
)

type vectorHandler struct {
	opts *options
}

func newVectorHandler(o *options) *vectorHandler { return &vectorHandler{opts: o} }

func (h *vectorHandler) Name() string { return "vector" }

var vectorExts = map[string]bool{
	".geojson": true, ".json": true, ".shp": true, ".gml": true, ".kml": true, ".fgb": true, ".gpkg": true,
}

func (h *vectorHandler) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !vectorExts[ext] {
		return false
	}
	if ext == ".json" {
		// A bare .json extension is only vector-supported if it parses
		// as GeoJSON — otherwise leave it for nothing (json CSV-adjacent
		// sidecar files are not a supported format).
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return false
		}
		return probe.Type != ""
	}
	return true
}

// featureCollection is a minimal structural decode of a GeoJSON
// FeatureCollection/Feature/bare-geometry, delegating actual geometry
// construction to ctessum/geom/encoding/geojson.Decode per element.
type featureCollection struct {
	Type     string          `json:"type"`
	Features []feature       `json:"features"`
	Geometry json.RawMessage `json:"geometry"`
}

type feature struct {
	Geometry json.RawMessage `json:"geometry"`
}

func (h *vectorHandler) loadGeoJSON(path string) ([]geom.Geom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, err
	}

	var geoms []geom.Geom

	switch fc.Type {
	case "FeatureCollection":
		for _, f := range fc.Features {
			if len(f.Geometry) == 0 {
				continue
			}
			g, err := geojson.Decode(f.Geometry)
			if err != nil {
				logging.Debug().Str("file", path).Err(err).Msg("vector: skipping unparseable feature geometry")
				continue
			}
			geoms = append(geoms, g)
		}
	case "Feature":
		if len(fc.Geometry) > 0 {
			g, err := geojson.Decode(fc.Geometry)
			if err == nil {
				geoms = append(geoms, g)
			}
		}
	default:
		// bare geometry object
		g, err := geojson.Decode(data)
		if err == nil {
			geoms = append(geoms, g)
		}
	}

	return geoms, nil
}

// layerResult is one layer's envelope + CRS, mirroring handleVector.py's
// geo_dict entries before hf.bbox_merge.
type layerResult struct {
	bbox BBoxResult
	crs  string
}

func (h *vectorHandler) layers(path string) ([]layerResult, []geom.Geom, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".shp" {
		return h.shpLayer(path)
	}

	// GeoJSON is WGS84 by RFC 7946 — no CRS transform needed.
	geoms, err := h.loadGeoJSON(path)
	if err != nil {
		return nil, nil, err
	}
	if len(geoms) == 0 {
		return nil, nil, nil
	}

	b := geoms[0].Bounds()
	for _, g := range geoms[1:] {
		b.Extend(g.Bounds())
	}

	lr := layerResult{
		bbox: BBoxResult{MinLat: b.Min.Y, MinLon: b.Min.X, MaxLat: b.Max.Y, MaxLon: b.Max.X},
		crs:  "4326",
	}

	// Known GML axis-swap bug (spec.md §4.1): GDAL >= 3.2 on GML returns
	// (minLat, maxLat, minLon, maxLon); reorder. Every non-.shp file is
	// decoded as GeoJSON above, so this branch only takes effect for a
	// .gml file whose content is GeoJSON; no test covers it.
	if ext == ".gml" {
		lr.bbox = BBoxResult{MinLat: lr.bbox.MinLon, MinLon: lr.bbox.MinLat, MaxLat: lr.bbox.MaxLon, MaxLon: lr.bbox.MaxLat}
	}

	return []layerResult{lr}, geoms, nil
}

func (h *vectorHandler) shpLayer(path string) ([]layerResult, []geom.Geom, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, nil, err
	}
	defer dec.Close()

	crs := "4326"
	var transformer proj.Transformer

	if sr, serr := dec.SR(); serr == nil && sr != nil {
		wgs84, werr := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
		if werr == nil {
			if t, terr := sr.NewTransform(wgs84); terr == nil {
				transformer = t
			}
		}
	}

	var rec struct {
		Geom geom.Geom
	}

	var geoms []geom.Geom

	b := geom.NewBounds()

	for dec.DecodeRow(&rec) {
		g := rec.Geom
		if g == nil {
			continue
		}
		if transformer != nil {
			if tg, terr := g.Transform(transformer); terr == nil {
				g = tg
			} else {
				logging.Debug().Str("file", path).Err(terr).Msg("vector: CRS transform failed for feature, skipping")
				continue
			}
		}
		geoms = append(geoms, g)
		b.Extend(g.Bounds())
	}

	if err := dec.Error(); err != nil {
		return nil, nil, err
	}
	if len(geoms) == 0 {
		return nil, nil, nil
	}

	return []layerResult{{
		bbox: BBoxResult{MinLat: b.Min.Y, MinLon: b.Min.X, MaxLat: b.Max.Y, MaxLon: b.Max.X},
		crs:  crs,
	}}, geoms, nil
}

func (h *vectorHandler) BoundingBox(path string) (*BBoxResult, string, error) {
	layers, _, err := h.layers(path)
	if err != nil {
		return nil, "", err
	}
	if len(layers) == 0 {
		return nil, "", nil
	}

	merged := layers[0].bbox
	for _, l := range layers[1:] {
		merged = merge(merged, l.bbox)
	}

	if !validRange(merged) {
		flipped := BBoxResult{MinLat: merged.MinLon, MinLon: merged.MinLat, MaxLat: merged.MaxLon, MaxLon: merged.MaxLat}
		if validRange(flipped) {
			logging.Debug().Str("file", path).Msg("vector: applying flip heuristic")
			merged = flipped
		} else {
			return nil, "", nil
		}
	}

	return &merged, layers[0].crs, nil
}

func merge(a, b BBoxResult) BBoxResult {
	return BBoxResult{
		MinLat: math.Min(a.MinLat, b.MinLat),
		MinLon: math.Min(a.MinLon, b.MinLon),
		MaxLat: math.Max(a.MaxLat, b.MaxLat),
		MaxLon: math.Max(a.MaxLon, b.MaxLon),
	}
}

func validRange(b BBoxResult) bool {
	return b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLat <= b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 && b.MinLon <= b.MaxLon
}

// ConvexHull implements HullCapable: collect every feature's
// coordinates into an orb.MultiPoint and take the planar hull,
// falling back to the envelope on degenerate (collinear/singleton)
// input per spec.md §4.1.
func (h *vectorHandler) ConvexHull(path string) (*HullResult, error) {
	_, geoms, err := h.layers(path)
	if err != nil {
		return nil, err
	}
	if len(geoms) == 0 {
		return nil, nil
	}

	var points orb.MultiPoint

	for _, g := range geoms {
		collectPoints(g, &points)
	}

	if len(points) < 3 {
		return envelopeFallback(geoms), nil
	}

	hull := planar.ConvexHull(points)
	ring, ok := hull.(orb.Ring)
	if !ok || len(ring) < 4 {
		return envelopeFallback(geoms), nil
	}

	coords := make([][2]float64, len(ring))
	for i, p := range ring {
		coords[i] = [2]float64{p[0], p[1]}
	}

	return &HullResult{Coords: coords}, nil
}

func collectPoints(g geom.Geom, out *orb.MultiPoint) {
	switch v := g.(type) {
	case geom.Point:
		*out = append(*out, orb.Point{v.X, v.Y})
	case geom.LineString:
		for _, p := range v {
			*out = append(*out, orb.Point{p.X, p.Y})
		}
	case geom.Polygon:
		for _, ring := range v {
			for _, p := range ring {
				*out = append(*out, orb.Point{p.X, p.Y})
			}
		}
	case geom.MultiPoint:
		for _, p := range v {
			*out = append(*out, orb.Point{p.X, p.Y})
		}
	case geom.MultiLineString:
		for _, ls := range v {
			for _, p := range ls {
				*out = append(*out, orb.Point{p.X, p.Y})
			}
		}
	case geom.MultiPolygon:
		for _, poly := range v {
			for _, ring := range poly {
				for _, p := range ring {
					*out = append(*out, orb.Point{p.X, p.Y})
				}
			}
		}
	}
}

func envelopeFallback(geoms []geom.Geom) *HullResult {
	b := geoms[0].Bounds()
	for _, g := range geoms[1:] {
		b.Extend(g.Bounds())
	}

	coords := [][2]float64{
		{b.Min.X, b.Min.Y}, {b.Max.X, b.Min.Y}, {b.Max.X, b.Max.Y}, {b.Min.X, b.Max.Y}, {b.Min.X, b.Min.Y},
	}

	return &HullResult{Coords: coords, IsEnvelope: true}
}

func (h *vectorHandler) TemporalExtent(path string, numSample int) (*TBoxResult, error) {
	_, geoms, err := h.layers(path)
	if err != nil || len(geoms) == 0 {
		return nil, err
	}

	// Vector handler extracts temporal extent from GeoJSON feature
	// properties matching the time-column patterns csvhandler also
	// uses; ctessum/geom's decoder discards non-geometry properties, so
	// we re-read the raw JSON for property scanning (GeoJSON files
	// only — shapefile DBF attributes are not scanned).
	if strings.ToLower(filepath.Ext(path)) == ".shp" {
		return nil, nil
	}

	return scanGeoJSONProperties(path, numSample)
}

func scanGeoJSONProperties(path string, numSample int) (*TBoxResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc struct {
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, nil
	}

	var cells []string

	for _, f := range fc.Features {
		for k, v := range f.Properties {
			matched := false
			for _, re := range compiledCSVPatterns["time"] {
				if re.MatchString(k) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
			if s, ok := v.(string); ok && s != "" {
				cells = append(cells, s)
			}
		}
	}

	if len(cells) == 0 {
		return nil, nil
	}

	var min, max string

	for _, c := range cells {
		t, err := parseTimeCell(c)
		if err != nil {
			continue
		}
		if min == "" || t < min {
			min = t
		}
		if max == "" || t > max {
			max = t
		}
	}

	if min == "" {
		return nil, nil
	}

	return &TBoxResult{Start: min, End: max}, nil
}
