package handlers

import (
	"encoding/csv"
	"encoding/hex"
	"math"
	"math/rand"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/btraven00/geoextent/internal/geoerrors"
	"github.com/btraven00/geoextent/internal/logging"
)

// csvColumnPatterns is ported verbatim (case-insensitive regex,
// first-match-wins per column) from original_source's handleCSV.py
// `search` dict.
var csvColumnPatterns = map[string][]string{
	"longitude": {`(.)*longitude`, `(.)*long(.)*`, `^lon`, `lon$`, `(.)*lng(.)*`, `^x$`, `x$`},
	"latitude":  {`(.)*latitude(.)*`, `^lat`, `lat$`, `^y$`, `y$`},
	"geometry": {
		`(.)*geometry(.)*`, `(.)*geom(.)*`, `^wkt`, `wkt$`, `(.)*wkt(.)*`,
		`^wkb`, `wkb$`, `(.)*wkb(.)*`, `(.)*coordinates(.)*`, `(.)*coords(.)*`,
		`^coords$`, `coords$`, `^coordinates$`, `coordinates$`,
	},
	"time": {`(.)*timestamp(.)*`, `(.)*datetime(.)*`, `(.)*time(.)*`, `date$`, `^date`, `^begin`},
	"crs":  {`^crs$`, `^srsid$`, `^epsg$`},
}

var compiledCSVPatterns = compileAll(csvColumnPatterns)

func compileAll(m map[string][]string) map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(m))
	for k, patterns := range m {
		rs := make([]*regexp.Regexp, len(patterns))
		for i, p := range patterns {
			rs[i] = regexp.MustCompile("(?i)" + p)
		}
		out[k] = rs
	}
	return out
}

func findColumn(header []string, kind string) int {
	for idx, name := range header {
		for _, re := range compiledCSVPatterns[kind] {
			if re.MatchString(name) {
				return idx
			}
		}
	}
	return -1
}

// wktKeyword recognizes the geometry-keyword prefixes handleCSV.py
// checks before falling back to WKB.
var wktKeyword = regexp.MustCompile(`(?i)^\s*(POINT|LINESTRING|POLYGON|MULTIPOINT|MULTILINESTRING|MULTIPOLYGON|GEOMETRYCOLLECTION)`)

type csvHandler struct {
	opts *options
}

func newCSVHandler(o *options) *csvHandler { return &csvHandler{opts: o} }

func (h *csvHandler) Name() string { return "csv" }

// Supports mirrors handleCSV.py's checkFileSupported: extension must be
// .csv and the first record must parse as comma-separated text (we use
// the stdlib csv.Reader parse-by-attempt rather than a GDAL CSV-driver
// probe, since this module has no GDAL binding).
func (h *csvHandler) Supports(path string) bool {
	if !strings.EqualFold(filepathExt(path), ".csv") {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	_, err = r.Read()
	return err == nil
}

func filepathExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}

func (h *csvHandler) BoundingBox(path string) (*BBoxResult, string, error) {
	bbox, crs, err := h.fromGeometryColumn(path)
	if err == nil && bbox != nil {
		return bbox, crs, nil
	}

	return h.fromCoordinateColumns(path)
}

// fromGeometryColumn implements strategy (a): WKT/hex-WKB/raw-WKB
// parsing of a geometry column, read one row at a time; csvChunkSize
// only sets how often a progress line is debug-logged.
func (h *csvHandler) fromGeometryColumn(path string) (*BBoxResult, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, "", err
	}

	geomIdx := findColumn(header, "geometry")
	if geomIdx < 0 {
		return nil, "", nil
	}

	crs, err := h.detectCRS(header, path)
	if err != nil {
		return nil, "", err
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	found := false

	chunk := h.opts.csvChunkSize
	rows := 0

	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		rows++

		if geomIdx >= len(record) {
			continue
		}

		g, parseErr := parseGeometryCell(record[geomIdx])
		if parseErr != nil {
			logging.Debug().Err(parseErr).Str("file", path).Msg("csv: unparseable geometry cell, skipping")
			continue
		}
		if g == nil {
			continue
		}

		b := g.Bound()
		minX = math.Min(minX, b.Min[0])
		minY = math.Min(minY, b.Min[1])
		maxX = math.Max(maxX, b.Max[0])
		maxY = math.Max(maxY, b.Max[1])
		found = true

		if rows%chunk == 0 {
			logging.Debug().Int("rows", rows).Str("file", path).Msg("csv: processed chunk")
		}
	}

	if !found {
		return nil, "", nil
	}

	return &BBoxResult{MinLat: minY, MinLon: minX, MaxLat: maxY, MaxLon: maxX}, crs, nil
}

func parseGeometryCell(cell string) (orb.Geometry, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}

	if wktKeyword.MatchString(cell) {
		g, err := wkt.Unmarshal(cell)
		return g, err
	}

	// hex-encoded WKB first, then raw bytes.
	if raw, err := hex.DecodeString(cell); err == nil {
		g, werr := wkb.Unmarshal(raw)
		if werr == nil {
			return g, nil
		}
	}

	g, err := wkb.Unmarshal([]byte(cell))
	return g, err
}

// fromCoordinateColumns implements strategy (b): separate lon/lat
// columns.
func (h *csvHandler) fromCoordinateColumns(path string) (*BBoxResult, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, "", err
	}

	lonIdx := findColumn(header, "longitude")
	latIdx := findColumn(header, "latitude")
	if lonIdx < 0 || latIdx < 0 {
		return nil, "", nil
	}

	crs, err := h.detectCRS(header, path)
	if err != nil {
		return nil, "", err
	}

	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	found := false

	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if lonIdx >= len(record) || latIdx >= len(record) {
			continue
		}

		lon, err1 := strconv.ParseFloat(strings.TrimSpace(record[lonIdx]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(record[latIdx]), 64)
		if err1 != nil || err2 != nil {
			continue
		}

		minLon, maxLon = math.Min(minLon, lon), math.Max(maxLon, lon)
		minLat, maxLat = math.Min(minLat, lat), math.Max(maxLat, lat)
		found = true
	}

	if !found {
		return nil, "", nil
	}

	return &BBoxResult{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}, crs, nil
}

// detectCRS mirrors handleCSV.py's getCRS: a crs/srsID/EPSG column with a
// single unique value wins; no column at all defaults to "4326". A column
// present with more than one distinct value is genuinely ambiguous — which
// row's CRS applies to the file's overall bbox? — so that case fails with
// KindExtraction rather than silently guessing 4326.
func (h *csvHandler) detectCRS(header []string, path string) (string, error) {
	idx := findColumn(header, "crs")
	if idx < 0 {
		logging.Debug().Str("file", path).Msg("csv: no CRS column, defaulting to 4326")
		return "4326", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "4326", nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	_, _ = r.Read() // header

	values := map[string]bool{}
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if idx < len(record) {
			values[strings.TrimSpace(record[idx])] = true
		}
	}

	if len(values) == 1 {
		for v := range values {
			return v, nil
		}
	}
	if len(values) > 1 {
		return "", geoerrors.New(geoerrors.KindExtraction, "ambiguous CRS column: multiple distinct values present").WithPath(path)
	}

	return "4326", nil
}

func (h *csvHandler) TemporalExtent(path string, numSample int) (*TBoxResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	timeIdx := findColumn(header, "time")
	if timeIdx < 0 {
		return nil, nil
	}

	var cells []string
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if timeIdx < len(record) && strings.TrimSpace(record[timeIdx]) != "" {
			cells = append(cells, record[timeIdx])
		}
	}

	if len(cells) == 0 {
		return nil, nil
	}

	if numSample > 0 && numSample < len(cells) {
		rnd := rand.New(rand.NewSource(h.opts.sampleSeed))
		rnd.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })
		cells = cells[:numSample]
	}

	var min, max string

	for _, c := range cells {
		iso, err := parseTimeCell(strings.TrimSpace(c))
		if err != nil {
			logging.Debug().Str("cell", c).Msg("csv: unparseable time cell, skipping")
			continue
		}

		if min == "" || iso < min {
			min = iso
		}
		if max == "" || iso > max {
			max = iso
		}
	}

	if min == "" {
		return nil, nil
	}

	return &TBoxResult{Start: min, End: max}, nil
}
