// Package handlers implements C1: the three format handlers (CSV,
// vector, raster) that each know how to pull a bbox/crs/tbox/hull out
// of one local file. Generalizes the teacher's duck-typed downloader
// registry (pkg/downloaders/registry.go) into the small polymorphic
// capability set spec.md §9 calls for: a static ordered slice of
// implementations, first-match-wins, rather than a map keyed by name.
package handlers

// BBoxResult is what a handler returns for a bounding box: the box
// itself. Handler.BoundingBox returns the CRS code alongside it. The
// raster and Shapefile paths transform to WGS84 and report "4326"; the
// CSV handler does not transform and reports the code from the file's
// CRS column (or "4326" when there is none).
type BBoxResult struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// HullResult is a convex hull ring plus whether it's a true hull or an
// envelope-fallback (spec.md §4.1 vector handler degenerate-input note).
type HullResult struct {
	Coords    [][2]float64 // [lon, lat]
	IsEnvelope bool
}

// TBoxResult is a [start, end] ISO date pair.
type TBoxResult struct {
	Start, End string
}

// Handler is the capability set every format handler implements.
// ConvexHull is optional — callers type-assert for HullCapable.
type Handler interface {
	Name() string
	Supports(path string) bool
	BoundingBox(path string) (*BBoxResult, string, error) // bbox, crs, error
	TemporalExtent(path string, numSample int) (*TBoxResult, error)
}

// HullCapable is implemented by handlers that can compute a convex hull
// (currently only the vector handler; CSV/raster fall back to envelope
// at the aggregator level).
type HullCapable interface {
	ConvexHull(path string) (*HullResult, error)
}

// Ordered returns the three handlers in spec.md §4.1's detection order:
// CSV, then vector, then raster, first match wins.
func Ordered(opts ...Option) []Handler {
	cfg := defaultOptions()
	for _, o := range opts {
		o(cfg)
	}

	return []Handler{
		newCSVHandler(cfg),
		newVectorHandler(cfg),
		newRasterHandler(cfg),
	}
}

// Options configures handler-wide knobs threaded down from the CLI/API
// (spec.md §6 --assume-wgs84, CSV chunk size, sample seed).
type options struct {
	assumeWGS84 bool
	csvChunkSize int
	sampleSeed   int64
}

type Option func(*options)

func WithAssumeWGS84(v bool) Option { return func(o *options) { o.assumeWGS84 = v } }

func WithCSVChunkSize(n int) Option { return func(o *options) { o.csvChunkSize = n } }

func defaultOptions() *options {
	return &options{csvChunkSize: 50000, sampleSeed: 0}
}

// Detect walks handlers in order and returns the first one that
// supports path, or nil if none does.
func Detect(path string, hs []Handler) Handler {
	for _, h := range hs {
		if h.Supports(path) {
			return h
		}
	}
	return nil
}
