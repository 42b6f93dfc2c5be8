package handlers

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/ctessum/cdf"
	"github.com/araddon/dateparse"
	"github.com/ctessum/geom/proj"

	"github.com/btraven00/geoextent/internal/logging"
)

type rasterHandler struct {
	opts *options
}

func newRasterHandler(o *options) *rasterHandler { return &rasterHandler{opts: o} }

func (h *rasterHandler) Name() string { return "raster" }

var rasterExts = map[string]bool{
	".tif": true, ".tiff": true, ".geotiff": true, ".nc": true, ".netcdf": true, ".asc": true,
}

func (h *rasterHandler) Supports(path string) bool {
	return rasterExts[strings.ToLower(filepath.Ext(path))]
}

// geotransform is the standard 6-coefficient affine world-file form:
// x = originX + col*pixelW + row*rotX ; y = originY + col*rotY + row*pixelH.
type geotransform struct {
	originX, pixelW, rotX, originY, rotY, pixelH float64
}

func (g geotransform) corner(col, row float64) (x, y float64) {
	return g.originX + col*g.pixelW + row*g.rotX, g.originY + col*g.rotY + row*g.pixelH
}

func (h *rasterHandler) BoundingBox(path string) (*BBoxResult, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".nc" || ext == ".netcdf" {
		return h.netCDFBoundingBox(path)
	}
	return h.geoTIFFBoundingBox(path)
}

// geoTIFFBoundingBox reads a sidecar world file (.tfw for .tif) for the
// geotransform and a sidecar .prj for the CRS, exactly the "world file
// present but no .prj" case spec.md §4.1 calls out for the
// ungeoreferenced-raster heuristic.
func (h *rasterHandler) geoTIFFBoundingBox(path string) (*BBoxResult, string, error) {
	gt, ok := readWorldFile(worldFilePath(path))
	if !ok {
		return nil, "", nil
	}

	w, hgt, err := tiffDimensions(path)
	if err != nil {
		logging.Debug().Str("file", path).Err(err).Msg("raster: could not read TIFF dimensions")
		return nil, "", nil
	}

	x0, y0 := gt.corner(0, 0)
	x1, y1 := gt.corner(float64(w), float64(hgt))

	minX, maxX := math.Min(x0, x1), math.Max(x0, x1)
	minY, maxY := math.Min(y0, y1), math.Max(y0, y1)

	crsText, hasCRS := readPRJ(prjPath(path))

	if !hasCRS {
		// No CRS: check corners against WGS84 range per the spec's
		// ungeoreferenced-raster heuristic.
		candidate := BBoxResult{MinLat: minY, MinLon: minX, MaxLat: maxY, MaxLon: maxX}
		if validRange(candidate) {
			logging.Debug().Str("file", path).Msg("raster: no CRS, corners within WGS84 range, assuming WGS84")
			return &candidate, "4326", nil
		}
		if h.opts.assumeWGS84 {
			return &candidate, "4326", nil
		}
		logging.Debug().Str("file", path).Msg("raster: no CRS and corners out of WGS84 range, dropping")
		return nil, "", nil
	}

	sr, err := proj.Parse(crsText)
	if err != nil {
		return nil, "", nil
	}

	wgs84, err := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		return nil, "", err
	}

	transform, err := sr.NewTransform(wgs84)
	if err != nil {
		return nil, "", err
	}

	tx0, ty0, err := transformXY(transform, minX, minY)
	if err != nil {
		return nil, "", err
	}
	tx1, ty1, err := transformXY(transform, maxX, maxY)
	if err != nil {
		return nil, "", err
	}

	candidate := BBoxResult{
		MinLat: math.Min(ty0, ty1), MinLon: math.Min(tx0, tx1),
		MaxLat: math.Max(ty0, ty1), MaxLon: math.Max(tx0, tx1),
	}

	if validRange(candidate) {
		return &candidate, "4326", nil
	}

	flipped := BBoxResult{MinLat: candidate.MinLon, MinLon: candidate.MinLat, MaxLat: candidate.MaxLon, MaxLon: candidate.MaxLat}
	if validRange(flipped) {
		logging.Debug().Str("file", path).Msg("raster: applying flip heuristic")
		return &flipped, "4326", nil
	}

	logging.Warn().Str("file", path).Msg("raster: bbox out of WGS84 range after transform and flip, dropping")
	return nil, "", nil
}

// netCDFBoundingBox reads ACDD geospatial_lat_min/max and
// geospatial_lon_min/max global attributes, the common convention for
// already-WGS84 gridded research datasets.
func (h *rasterHandler) netCDFBoundingBox(path string) (*BBoxResult, string, error) {
	f, err := openNetCDF(path)
	if err != nil {
		return nil, "", err
	}

	latMin, ok1 := globalFloatAttr(f, "geospatial_lat_min")
	latMax, ok2 := globalFloatAttr(f, "geospatial_lat_max")
	lonMin, ok3 := globalFloatAttr(f, "geospatial_lon_min")
	lonMax, ok4 := globalFloatAttr(f, "geospatial_lon_max")

	if !(ok1 && ok2 && ok3 && ok4) {
		logging.Debug().Str("file", path).Msg("netcdf: no geospatial_* ACDD attributes found")
		return nil, "", nil
	}

	candidate := BBoxResult{MinLat: latMin, MinLon: lonMin, MaxLat: latMax, MaxLon: lonMax}
	if !validRange(candidate) {
		return nil, "", nil
	}

	return &candidate, "4326", nil
}

func openNetCDF(path string) (*cdf.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return cdf.Open(f)
}

func globalFloatAttr(f *cdf.File, name string) (float64, bool) {
	v := f.Header.GetAttribute("", name)
	if v == nil {
		return 0, false
	}
	switch vv := v.(type) {
	case []float64:
		if len(vv) > 0 {
			return vv[0], true
		}
	case []float32:
		if len(vv) > 0 {
			return float64(vv[0]), true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func transformXY(t proj.Transformer, x, y float64) (float64, float64, error) {
	return t(x, y)
}

func worldFilePath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if len(ext) >= 3 {
		return base + ext[:2] + ext[len(ext)-1:] + "w"
	}
	return base + ".tfw"
}

func prjPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".prj"
}

func readWorldFile(path string) (geotransform, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return geotransform{}, false
	}

	fields := strings.Fields(string(data))
	if len(fields) < 6 {
		return geotransform{}, false
	}

	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(vals2(fields[i]), 64)
		if err != nil {
			return geotransform{}, false
		}
		vals[i] = v
	}

	return geotransform{pixelW: vals[0], rotY: vals[1], rotX: vals[2], pixelH: vals[3], originX: vals[4], originY: vals[5]}, true
}

func vals2(s string) string { return strings.TrimSpace(s) }

func readPRJ(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// tiffDimensions reads ImageWidth/ImageLength (tags 256/257) directly
// from the TIFF IFD. A hand-rolled reader rather than a pulled-in
// library: the format here is a fixed dozen-byte header plus a tag
// table walk, no parsing ambiguity a library would meaningfully
// simplify, and no TIFF tag library appears anywhere in the corpus
// (see DESIGN.md).
func tiffDimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	header := make([]byte, 8)
	if _, err := f.Read(header); err != nil {
		return 0, 0, err
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, 0, errNotTIFF
	}

	ifdOffset := order.Uint32(header[4:8])

	if _, err := f.Seek(int64(ifdOffset), 0); err != nil {
		return 0, 0, err
	}

	var numEntries uint16
	if err := binary.Read(f, order, &numEntries); err != nil {
		return 0, 0, err
	}

	entry := make([]byte, 12)

	for i := 0; i < int(numEntries); i++ {
		if _, err := f.Read(entry); err != nil {
			return 0, 0, err
		}

		tag := order.Uint16(entry[0:2])
		valOrOffset := order.Uint32(entry[8:12])

		switch tag {
		case 256: // ImageWidth
			width = int(valOrOffset)
		case 257: // ImageLength
			height = int(valOrOffset)
		}
	}

	if width == 0 || height == 0 {
		return 0, 0, errNoDims
	}

	return width, height, nil
}

// tiffDateTime reads tag 306 (DateTime) from the primary IFD, the
// first item in spec.md §4.1's raster temporal priority chain.
func tiffDateTime(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	header := make([]byte, 8)
	if _, err := f.Read(header); err != nil {
		return "", false
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return "", false
	}

	ifdOffset := order.Uint32(header[4:8])
	if _, err := f.Seek(int64(ifdOffset), 0); err != nil {
		return "", false
	}

	var numEntries uint16
	if err := binary.Read(f, order, &numEntries); err != nil {
		return "", false
	}

	entry := make([]byte, 12)

	for i := 0; i < int(numEntries); i++ {
		if _, err := f.Read(entry); err != nil {
			return "", false
		}

		tag := order.Uint16(entry[0:2])
		if tag != 306 {
			continue
		}

		count := order.Uint32(entry[4:8])
		offset := order.Uint32(entry[8:12])

		buf := make([]byte, count)
		if _, err := f.ReadAt(buf, int64(offset)); err != nil {
			return "", false
		}

		// TIFF DateTime format: "YYYY:MM:DD HH:MM:SS\0"
		s := strings.TrimRight(string(buf), "\x00")
		if len(s) >= 10 {
			return s[0:4] + "-" + s[5:7] + "-" + s[8:10], true
		}
	}

	return "", false
}

var errNotTIFF = tiffErr("not a TIFF file")
var errNoDims = tiffErr("no ImageWidth/ImageLength tags found")

type tiffErr string

func (e tiffErr) Error() string { return string(e) }

func (h *rasterHandler) TemporalExtent(path string, numSample int) (*TBoxResult, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".tif" || ext == ".tiff" || ext == ".geotiff" {
		// Priority items 1-2: GeoTIFF DATETIME tag, then
		// ACQUISITIONDATETIME (not exposed by a bare TIFF IFD walk — see
		// DESIGN.md; only the DATETIME tag is implemented here).
		if d, ok := tiffDateTime(path); ok {
			return &TBoxResult{Start: d, End: d}, nil
		}
		return nil, nil
	}

	if ext == ".nc" || ext == ".netcdf" {
		return h.netCDFTemporalExtent(path)
	}

	return nil, nil
}

// netCDFTemporalExtent implements priority items 3-4: a CF time axis
// with "<unit> since <epoch>" units, else ACDD time_coverage_start/end
// global attributes.
func (h *rasterHandler) netCDFTemporalExtent(path string) (*TBoxResult, error) {
	f, err := openNetCDF(path)
	if err != nil {
		return nil, err
	}

	if tbox := cfTimeAxis(f); tbox != nil {
		return tbox, nil
	}

	start, hasStart := globalStringAttr(f, "time_coverage_start")
	end, hasEnd := globalStringAttr(f, "time_coverage_end")

	if hasStart && hasEnd {
		return &TBoxResult{Start: normalizeISODate(start), End: normalizeISODate(end)}, nil
	}

	return nil, nil
}

var cfUnitsPattern = func() func(string) (unit string, epoch string, ok bool) {
	units := []string{"days", "hours", "minutes", "seconds"}
	return func(s string) (string, string, bool) {
		for _, u := range units {
			prefix := u + " since "
			if strings.HasPrefix(strings.ToLower(s), prefix) {
				return u, strings.TrimSpace(s[len(prefix):]), true
			}
		}
		return "", "", false
	}
}()

func cfTimeAxis(f *cdf.File) *TBoxResult {
	for _, v := range f.Header.Variables() {
		if !strings.Contains(strings.ToLower(v), "time") {
			continue
		}

		unitsAttr := f.Header.GetAttribute(v, "units")
		unitsStr, ok := unitsAttr.(string)
		if !ok {
			continue
		}

		unit, epochStr, ok := cfUnitsPattern(unitsStr)
		if !ok {
			continue
		}

		epoch, err := parseEpoch(epochStr)
		if err != nil {
			continue
		}

		lengths := f.Header.Lengths(v)
		if len(lengths) == 0 {
			continue
		}

		n := lengths[0]
		data := make([]float64, n)

		r := f.Reader(v, nil, nil)
		if _, err := r.Read(data); err != nil && err.Error() != "EOF" {
			continue
		}

		var min, max float64
		found := false

		for _, val := range data {
			if math.IsNaN(val) {
				continue
			}
			if !found || val < min {
				min = val
			}
			if !found || val > max {
				max = val
			}
			found = true
		}

		if !found {
			continue
		}

		return &TBoxResult{
			Start: addUnits(epoch, unit, min).Format("2006-01-02"),
			End:   addUnits(epoch, unit, max).Format("2006-01-02"),
		}
	}

	return nil
}

func parseEpoch(s string) (time.Time, error) {
	return dateparse.ParseAny(strings.TrimSpace(s))
}

func addUnits(epoch time.Time, unit string, n float64) time.Time {
	switch unit {
	case "days":
		return epoch.Add(time.Duration(n * float64(24*time.Hour)))
	case "hours":
		return epoch.Add(time.Duration(n * float64(time.Hour)))
	case "minutes":
		return epoch.Add(time.Duration(n * float64(time.Minute)))
	case "seconds":
		return epoch.Add(time.Duration(n * float64(time.Second)))
	default:
		return epoch
	}
}

func globalStringAttr(f *cdf.File, name string) (string, bool) {
	v := f.Header.GetAttribute("", name)
	if s, ok := v.(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func normalizeISODate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}
