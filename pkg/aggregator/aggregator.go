// Package aggregator implements C2: walking a local directory (or a
// scratch directory populated by a provider download), dispatching
// each file to a C1 handler, and merging per-file extents into one
// aggregate bbox/tbox/convex-hull. Grounded on original_source's
// geoextent/lib/extent.py (fromDirectory, compute_bbox_wgs84,
// compute_convex_hull_wgs84).
package aggregator

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mholt/archiver/v3"

	"github.com/btraven00/geoextent/internal/logging"
	"github.com/btraven00/geoextent/pkg/geoextent"
	"github.com/btraven00/geoextent/pkg/handlers"
)

// Options mirrors the caller-facing options spec.md §6's from_directory
// accepts.
type Options struct {
	BBox       bool
	TBox       bool
	ConvexHull bool
	Details    bool
	Recursive  bool
	Timeout    *time.Duration
	NumSample  int
}

func DefaultOptions() Options {
	return Options{BBox: true, TBox: true, Recursive: true}
}

var archiveExts = map[string]bool{
	".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".rar": true, ".7z": true,
}

// Walk is the C2 entry point. dirPath must already exist; isTopLevelArchive
// signals that the top-level input was itself an archive (so the result's
// format is "archive" rather than "folder", per spec.md §4.2).
func Walk(ctx context.Context, dirPath string, isTopLevelArchive bool, opts Options) (*geoextent.Result, error) {
	hs := handlers.Ordered(handlers.WithAssumeWGS84(false))

	start := time.Now()

	files, err := collectFiles(dirPath, opts.Recursive)
	if err != nil {
		return nil, err
	}

	if opts.Timeout != nil {
		seed := int64(0)
		rnd := rand.New(rand.NewSource(seed))
		rnd.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
	}

	result := &geoextent.Result{Format: "folder"}
	if isTopLevelArchive {
		result.Format = "archive"
	}

	var (
		bboxAcc  *geoextent.BBox
		tboxAcc  *geoextent.TBox
		hullPts  [][2]float64
		hullFail bool
	)

	var details map[string]*geoextent.DetailEntry
	if opts.Details {
		details = map[string]*geoextent.DetailEntry{}
	}

	timedOut := false

	for _, path := range files {
		if opts.Timeout != nil && time.Since(start) > *opts.Timeout {
			timedOut = true
			break
		}

		select {
		case <-ctx.Done():
			timedOut = true
		default:
		}
		if timedOut {
			break
		}

		entry, ext := processFile(path, hs, opts)

		if opts.Details {
			rel, _ := filepath.Rel(dirPath, path)
			setDetail(details, rel, entry)
		}

		if entry == nil || entry.Extent == nil {
			continue
		}

		e := entry.Extent

		if e.BBox != nil {
			if bboxAcc == nil {
				b := *e.BBox
				bboxAcc = &b
			} else {
				u := bboxAcc.Union(*e.BBox)
				bboxAcc = &u
			}
		}

		if e.TBox != nil {
			if tboxAcc == nil {
				t := *e.TBox
				tboxAcc = &t
			} else {
				m := tboxAcc.Merge(*e.TBox)
				tboxAcc = &m
			}
		}

		if opts.ConvexHull {
			if len(e.ConvexHullCoords) > 0 {
				hullPts = append(hullPts, e.ConvexHullCoords...)
			} else if e.BBox != nil {
				hullPts = append(hullPts, envelopeRing(*e.BBox)...)
			}
		}

		_ = ext
	}

	if bboxAcc != nil {
		if bboxAcc.Valid() {
			result.BBox = bboxAcc
			result.CRS = "4326"
		} else {
			logging.Warn().Str("dir", dirPath).Msg("aggregator: aggregate bbox failed WGS84 range check, omitting")
		}
	}

	if tboxAcc != nil {
		result.TBox = tboxAcc
	}

	if opts.ConvexHull && len(hullPts) >= 3 {
		hull, err := convexHull(hullPts)
		if err != nil {
			hullFail = true
			logging.Warn().Str("dir", dirPath).Err(err).Msg("aggregator: convex hull merge failed, falling back to bbox union")
		} else {
			result.ConvexHull = true
			result.ConvexHullCoords = hull
		}
	}
	if hullFail {
		result.ConvexHull = false
		result.ConvexHullCoords = nil
	}

	if opts.Details {
		result.Details = details
	}

	if timedOut {
		secs := int(time.Since(start).Seconds())
		result.TimeoutSeconds = &secs
	}

	return result, nil
}

func setDetail(details map[string]*geoextent.DetailEntry, relPath string, entry *geoextent.DetailEntry) {
	parts := splitPath(relPath)
	cur := details

	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = entry
			return
		}

		node, ok := cur[p]
		if !ok || node.Dir == nil {
			node = &geoextent.DetailEntry{Dir: map[string]*geoextent.DetailEntry{}}
			cur[p] = node
		}

		cur = node.Dir
	}
}

func splitPath(p string) []string {
	var parts []string
	for _, part := range filepathSplitList(p) {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return []string{p}
	}
	return parts
}

func filepathSplitList(p string) []string {
	var out []string
	for {
		dir, file := filepath.Split(p)
		out = append([]string{file}, out...)
		if dir == "" || dir == p {
			break
		}
		p = filepath.Clean(dir)
		if p == "." || p == string(filepath.Separator) {
			break
		}
	}
	return out
}

func processFile(path string, hs []handlers.Handler, opts Options) (*geoextent.DetailEntry, string) {
	h := handlers.Detect(path, hs)
	if h == nil {
		return nil, ""
	}

	extent := &geoextent.Extent{}
	got := false

	if opts.BBox {
		// bbox and tbox extraction for a single file run concurrently
		// (spec.md §5), joined by a rendezvous on these two channels —
		// ported from the teacher's worker_pool.go task/result channel
		// shape, specialized to exactly two cooperating tasks per file.
	}

	type bboxOut struct {
		b   *handlers.BBoxResult
		crs string
		err error
	}
	type tboxOut struct {
		t   *handlers.TBoxResult
		err error
	}

	bboxCh := make(chan bboxOut, 1)
	tboxCh := make(chan tboxOut, 1)

	go func() {
		if !opts.BBox {
			bboxCh <- bboxOut{}
			return
		}
		b, crs, err := h.BoundingBox(path)
		bboxCh <- bboxOut{b: b, crs: crs, err: err}
	}()

	go func() {
		if !opts.TBox {
			tboxCh <- tboxOut{}
			return
		}
		t, err := h.TemporalExtent(path, opts.NumSample)
		tboxCh <- tboxOut{t: t, err: err}
	}()

	bo := <-bboxCh
	to := <-tboxCh

	if bo.err != nil {
		logging.Debug().Str("file", path).Err(bo.err).Msg("aggregator: bbox extraction failed, skipping")
	} else if bo.b != nil {
		extent.BBox = &geoextent.BBox{MinLat: bo.b.MinLat, MinLon: bo.b.MinLon, MaxLat: bo.b.MaxLat, MaxLon: bo.b.MaxLon}
		extent.CRS = bo.crs
		got = true
	}

	if to.err != nil {
		logging.Debug().Str("file", path).Err(to.err).Msg("aggregator: tbox extraction failed, skipping")
	} else if to.t != nil {
		extent.TBox = &geoextent.TBox{Start: to.t.Start, End: to.t.End}
		got = true
	}

	if opts.ConvexHull {
		if hc, ok := h.(handlers.HullCapable); ok {
			if hull, err := hc.ConvexHull(path); err == nil && hull != nil {
				extent.ConvexHull = true
				extent.ConvexHullCoords = hull.Coords
			}
		}
	}

	if !got {
		return &geoextent.DetailEntry{}, h.Name()
	}

	return &geoextent.DetailEntry{Extent: extent}, h.Name()
}

func envelopeRing(b geoextent.BBox) [][2]float64 {
	return [][2]float64{
		{b.MinLon, b.MinLat}, {b.MaxLon, b.MinLat}, {b.MaxLon, b.MaxLat}, {b.MinLon, b.MaxLat}, {b.MinLon, b.MinLat},
	}
}

// collectFiles walks dirPath, descending into subdirectories only when
// recursive=true, and extracting archive files (detected by extension,
// mholt/archiver/v3 doing the actual unpacking) into a scratch
// directory that is then walked too. Archives/subdirs are skipped
// (debug-logged) at the top level when recursive=false, per spec.md
// §4.2.
func collectFiles(dirPath string, recursive bool) ([]string, error) {
	var files []string

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		full := filepath.Join(dirPath, e.Name())

		if e.IsDir() {
			if !recursive {
				logging.Debug().Str("dir", full).Msg("aggregator: skipping subdirectory, recursive=false")
				continue
			}
			sub, err := collectFiles(full, recursive)
			if err != nil {
				logging.Debug().Str("dir", full).Err(err).Msg("aggregator: error walking subdirectory")
				continue
			}
			files = append(files, sub...)
			continue
		}

		if archiveExts[filepathExt(e.Name())] {
			if !recursive {
				logging.Debug().Str("file", full).Msg("aggregator: skipping archive, recursive=false")
				continue
			}

			scratch, err := os.MkdirTemp("", "geoextent-archive-*")
			if err != nil {
				continue
			}

			if err := archiver.Unarchive(full, scratch); err != nil {
				logging.Debug().Str("file", full).Err(err).Msg("aggregator: could not extract archive")
				continue
			}

			sub, err := collectFiles(scratch, true)
			if err == nil {
				files = append(files, sub...)
			}
			continue
		}

		files = append(files, full)
	}

	return files, nil
}

func filepathExt(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return lower(name[i:])
		}
	}
	return ""
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
