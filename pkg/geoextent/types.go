// Package geoextent is the public library surface: FromFile,
// FromDirectory, and FromRemote (spec.md §6), plus the Extent/Result
// data model every other package in this module produces or consumes.
package geoextent

import "fmt"

// BBox is the canonical internal bounding box: native geodetic order,
// WGS84. Do not construct one with legacy (lon-first) order — use
// Legacy() to produce that representation only at an output boundary.
type BBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Valid reports whether b satisfies spec.md P1: a proper WGS84 range
// with min <= max on both axes.
func (b BBox) Valid() bool {
	return b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLat <= b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 && b.MinLon <= b.MaxLon
}

// Flipped returns b with latitude and longitude swapped, the candidate
// tried once by the flip heuristic (spec.md §4.1, §9 Open Question 1).
func (b BBox) Flipped() BBox {
	return BBox{MinLat: b.MinLon, MinLon: b.MinLat, MaxLat: b.MaxLon, MaxLon: b.MaxLat}
}

// Union returns the component-wise envelope of a and b (spec.md P3).
func (a BBox) Union(b BBox) BBox {
	return BBox{
		MinLat: minF(a.MinLat, b.MinLat),
		MinLon: minF(a.MinLon, b.MinLon),
		MaxLat: maxF(a.MaxLat, b.MaxLat),
		MaxLon: maxF(a.MaxLon, b.MaxLon),
	}
}

// Legacy returns [minLon, minLat, maxLon, maxLat], the only
// representation in this module that reorders axes — produced solely at
// an output boundary when --legacy is requested (DESIGN.md Open
// Question 2).
func (b BBox) Legacy() [4]float64 {
	return [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// Native returns [minLat, minLon, maxLat, maxLon], the default order.
func (b BBox) Native() [4]float64 {
	return [4]float64{b.MinLat, b.MinLon, b.MaxLat, b.MaxLon}
}

func (b BBox) String() string {
	return fmt.Sprintf("[%.6f, %.6f, %.6f, %.6f]", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// TBox is a [start, end] temporal interval, ISO 8601 date strings.
type TBox struct {
	Start string
	End   string
}

// Merge returns the component-wise min/max of two intervals (spec.md
// §4.2 temporal merge), comparing lexicographically since both ends are
// YYYY-MM-DD strings.
func (t TBox) Merge(o TBox) TBox {
	start := t.Start
	if o.Start < start {
		start = o.Start
	}
	end := t.End
	if o.End > end {
		end = o.End
	}
	return TBox{Start: start, End: end}
}

// Valid reports spec.md P2: start <= end lexicographically.
func (t TBox) Valid() bool {
	return t.Start != "" && t.End != "" && t.Start <= t.End
}

// Extent is the canonical internal result of extracting from one file
// or one aggregate (spec.md §3 "Extent").
type Extent struct {
	BBox             *BBox
	CRS              string
	TBox             *TBox
	ConvexHull       bool
	ConvexHullCoords [][2]float64 // [lon, lat] exterior ring
	Legacy           bool         // emit BBox in [minLon, minLat, maxLon, maxLat] order
}

// Followed mirrors spec.md §4.4's followed: {from, to, via}.
type Followed struct {
	From string
	To   string
	Via  string
}

// ExtractionMetadata counts batch outcomes (spec.md §4.5 bulk mode).
type ExtractionMetadata struct {
	TotalResources int
	Successful     int
	Failed         int
}

// Result is the aggregate result of a directory walk or remote
// extraction (spec.md §3 "Aggregate result"). Fields are left as zero
// values (nil pointers, empty strings) when their inputs did not yield
// a value; the JSON marshaler (see marshal.go) omits them rather than
// emitting a placeholder.
type Result struct {
	Format            string // "folder" | "archive" | "remote" | "multiple_files" | <ext>
	BBox              *BBox
	CRS               string
	TBox              *TBox
	ConvexHull        bool
	ConvexHullCoords  [][2]float64
	Details           map[string]*DetailEntry
	ExtractionMethod  string // "metadata" | "download"
	TimeoutSeconds    *int
	Followed          *Followed
	ExtractionMeta    *ExtractionMetadata
	PerIdentifier     map[string]*Result // bulk FromRemote keyed by identifier
	PerIdentifierErrs map[string]string  // bulk errors, never abort the batch
	Legacy            bool               // emit BBox in [minLon, minLat, maxLon, maxLat] order
}

// DetailEntry is one node of the file-detail map (spec.md §3): either a
// leaf Extent, a nested directory map, or neither (nil, meaning
// unsupported/failed — not an error).
type DetailEntry struct {
	Extent *Extent
	Dir    map[string]*DetailEntry
}
