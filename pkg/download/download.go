// Package download implements C3: size-budgeted file selection and a
// bounded-parallelism fetch engine. The worker pool is adapted from
// internal/extractor/worker_pool.go's channel-based task/result/progress
// shape (same concurrency idiom, repurposed from PDF-extraction jobs to
// file downloads). The selection algorithm, scheduling gate, and
// throttle logic are ported from original_source's
// geoextent/lib/content_providers/providers.py (DoiProvider).
package download

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/btraven00/geoextent/internal/httpx"
	"github.com/btraven00/geoextent/internal/witness"
)

// FileDescriptor is the unit C3 operates on (spec.md §3).
type FileDescriptor struct {
	Name string
	URL  string
	Size int64 // 0 if unknown
}

// geospatialExts is the built-in set from spec.md §4.3, mergeable with
// caller-provided extensions.
var geospatialExts = map[string]bool{
	".geojson": true, ".csv": true, ".shp": true, ".shx": true, ".dbf": true,
	".prj": true, ".tif": true, ".tiff": true, ".geotiff": true, ".gpkg": true,
	".gpx": true, ".gml": true, ".kml": true, ".kmz": true, ".fgb": true,
	".json": true, ".nc": true, ".netcdf": true, ".asc": true, ".zip": true,
	".tar": true, ".gz": true, ".rar": true, ".sqlite": true, ".db": true,
}

// SelectMethod is the strategy named in spec.md §4.3.
type SelectMethod string

const (
	MethodOrdered  SelectMethod = "ordered"
	MethodSmallest SelectMethod = "smallest"
	MethodRandom   SelectMethod = "random"
)

// SelectConfig configures Select (spec.md §4.3's option table).
type SelectConfig struct {
	MaxSizeBytes       int64 // 0 means unbounded
	Method             SelectMethod
	Seed               int64
	SkipNoGeo          bool // exclude non-geo files from the candidate set entirely
	ExtraGeoExts       []string
	MaxWorkers         int
	ShowProgress       bool
	Throttle           bool
}

// Selection is Select's output.
type Selection struct {
	Files        []FileDescriptor
	SkippedCount int
	TotalBytes   int64
}

// Select implements spec.md §4.3's selection algorithm: partition into
// geo/non-geo by extension, sort each ascending by size, take geo
// first then non-geo, stop at the byte budget.
func Select(files []FileDescriptor, cfg SelectConfig) Selection {
	extSet := map[string]bool{}
	for ext, v := range geospatialExts {
		extSet[ext] = v
	}
	for _, ext := range cfg.ExtraGeoExts {
		extSet[strings.ToLower(ext)] = true
	}

	ordered := reorder(files, cfg)

	var geo, nonGeo []FileDescriptor
	for _, f := range ordered {
		if extSet[strings.ToLower(filepath.Ext(f.Name))] {
			geo = append(geo, f)
		} else {
			nonGeo = append(nonGeo, f)
		}
	}

	sortBySizeAsc(geo)
	sortBySizeAsc(nonGeo)

	candidates := geo
	skipped := 0
	if !cfg.SkipNoGeo {
		candidates = append(candidates, nonGeo...)
	} else {
		// "skip files whose extension never carries geospatial data":
		// non-geo files are excluded from the candidate set entirely,
		// not merely deprioritized — they never displace a geo file's
		// budget and are never themselves downloaded.
		skipped += len(nonGeo)
	}

	var selected []FileDescriptor
	var total int64

	for _, f := range candidates {
		if cfg.MaxSizeBytes > 0 && total+f.Size > cfg.MaxSizeBytes {
			skipped++
			continue
		}
		selected = append(selected, f)
		total += f.Size
	}

	return Selection{Files: selected, SkippedCount: skipped, TotalBytes: total}
}

func reorder(files []FileDescriptor, cfg SelectConfig) []FileDescriptor {
	out := make([]FileDescriptor, len(files))
	copy(out, files)

	switch cfg.Method {
	case MethodRandom:
		rnd := rand.New(rand.NewSource(cfg.Seed))
		rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	case MethodSmallest, MethodOrdered, "":
		// No reorder here. Select sorts each partition by size ascending
		// for every method, so ordered selects the same files as smallest.
	}

	return out
}

func sortBySizeAsc(fs []FileDescriptor) {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Size < fs[j].Size })
}

// shouldParallelize implements spec.md §4.3's scheduling gate.
func shouldParallelize(cfg SelectConfig, sel Selection) bool {
	n := len(sel.Files)
	if cfg.MaxWorkers <= 1 || n < 2 || n > 20 {
		return false
	}

	avg := int64(0)
	if n > 0 {
		avg = sel.TotalBytes / int64(n)
	}

	return sel.TotalBytes > 10*1024*1024 || avg > 1*1024*1024
}

// FetchFunc lets a provider override the per-file download step for the
// variants spec.md §4.3 names (302 redirect, text/plain presigned body,
// Location-on-200, plain binary). The default implementation
// (defaultFetch) handles all four.
type FetchFunc func(ctx context.Context, client *resty.Client, f FileDescriptor, destPath string) error

// Engine runs Select+Fetch against one HTTP client.
type Engine struct {
	client *resty.Client
	Fetch  FetchFunc
}

func New(client *resty.Client, fetch FetchFunc) *Engine {
	if client == nil {
		client = httpx.New()
	}
	if fetch == nil {
		fetch = defaultFetch
	}
	return &Engine{client: client, Fetch: fetch}
}

// FetchReport summarizes a Run.
type FetchReport struct {
	Downloaded []FileDescriptor
	Failed     map[string]error
}

// ProgressFunc is invoked under a lock so counters stay monotonic
// (spec.md §4.3, §5 "progress counter is protected by a mutex").
type ProgressFunc func(done, total int, name string)

// Run selects and fetches files into targetDir, using the
// parallel/sequential gate and throttle policy spec.md §4.3 requires.
func (e *Engine) Run(ctx context.Context, files []FileDescriptor, targetDir string, cfg SelectConfig, onProgress ProgressFunc) (*FetchReport, error) {
	sel := Select(files, cfg)

	report := &FetchReport{Failed: map[string]error{}}

	var mu sync.Mutex
	done := 0
	total := len(sel.Files)

	reportProgress := func(name string) {
		if onProgress == nil {
			return
		}
		mu.Lock()
		done++
		d := done
		mu.Unlock()
		onProgress(d, total, name)
	}

	process := func(f FileDescriptor) {
		name := witness.SanitizeFilename(f.Name)
		dest := witness.ResolveCollision(targetDir, name)

		if err := e.fetchWithThrottle(ctx, f, dest); err != nil {
			mu.Lock()
			report.Failed[f.Name] = err
			mu.Unlock()
			os.Remove(dest)
			reportProgress(f.Name)
			return
		}

		mu.Lock()
		report.Downloaded = append(report.Downloaded, f)
		mu.Unlock()
		reportProgress(f.Name)
	}

	if shouldParallelize(cfg, sel) {
		workers := cfg.MaxWorkers
		if workers > len(sel.Files) {
			workers = len(sel.Files)
		}

		tasks := make(chan FileDescriptor)
		var wg sync.WaitGroup

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for f := range tasks {
					select {
					case <-ctx.Done():
						return
					default:
					}
					process(f)
				}
			}()
		}

		for _, f := range sel.Files {
			tasks <- f
		}
		close(tasks)
		wg.Wait()
	} else {
		for _, f := range sel.Files {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			default:
			}
			process(f)
		}
	}

	return report, nil
}

// fetchWithThrottle wraps Fetch: when Fetch fails with a retryableError
// (a 429, 500, 502, 503 or 504 response), it waits once via throttle and
// retries Fetch once. SelectConfig.Throttle is not consulted, so this
// happens whether or not throttling was requested.
func (e *Engine) fetchWithThrottle(ctx context.Context, f FileDescriptor, destPath string) error {
	err := e.Fetch(ctx, e.client, f, destPath)
	if err == nil {
		return nil
	}

	if rerr, ok := err.(*retryableError); ok {
		throttle(ctx, rerr.resp)
		return e.Fetch(ctx, e.client, f, destPath)
	}

	return err
}

type retryableError struct {
	resp *resty.Response
}

func (e *retryableError) Error() string { return fmt.Sprintf("retryable HTTP status %d", e.resp.StatusCode()) }

// throttle implements spec.md §4.3's header-inspection order: Zenodo-
// style (x-ratelimit-*) then Dryad-style (ratelimit-*); the sleep is
// interruptible via ctx (spec.md §9 redesign note).
func throttle(ctx context.Context, resp *resty.Response) {
	if resp == nil {
		sleep(ctx, time.Second)
		return
	}

	wait := throttleWait(resp)
	sleep(ctx, wait)
}

func throttleWait(resp *resty.Response) time.Duration {
	remaining, resetAt, ok := rateLimitHeaders(resp, "x-ratelimit-remaining", "x-ratelimit-reset")
	if !ok {
		remaining, resetAt, ok = rateLimitHeaders(resp, "ratelimit-remaining", "ratelimit-reset")
	}

	is429 := resp.StatusCode() == http.StatusTooManyRequests

	if ok {
		if remaining < 2 || is429 {
			d := time.Until(time.Unix(resetAt, 0))
			if d > 0 {
				return d
			}
		}
		return time.Second
	}

	if is429 {
		return 60 * time.Second
	}

	return time.Second
}

func rateLimitHeaders(resp *resty.Response, remainingKey, resetKey string) (int64, int64, bool) {
	return parseRateLimitPair(resp.Header().Get(remainingKey), resp.Header().Get(resetKey))
}

func parseRateLimitPair(rem, reset string) (int64, int64, bool) {
	if rem == "" || reset == "" {
		return 0, 0, false
	}

	r, err1 := strconv.ParseInt(rem, 10, 64)
	t, err2 := strconv.ParseInt(reset, 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return r, t, true
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// defaultFetch streams the response body to disk in 1 MiB chunks (into
// destPath+".part", renamed onto destPath once complete), handling the four variants spec.md §4.3 names: the resty client
// follows 302 redirects automatically; a 200 text/plain body
// containing only a presigned URL triggers a second GET; a non-standard
// Location header on 200 is followed; otherwise the binary body is
// streamed directly.
func defaultFetch(ctx context.Context, client *resty.Client, f FileDescriptor, destPath string) error {
	resp, err := client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(f.URL)
	if err != nil {
		return err
	}

	body := resp.RawBody()
	defer body.Close()

	if httpx.IsRetryableStatus(resp.StatusCode()) {
		return &retryableError{resp: resp}
	}

	contentType := resp.Header().Get("Content-Type")

	if strings.HasPrefix(contentType, "text/plain") && resp.StatusCode() == http.StatusOK {
		data, err := io.ReadAll(io.LimitReader(body, 4096))
		if err == nil {
			presigned := strings.TrimSpace(string(data))
			if strings.HasPrefix(presigned, "http://") || strings.HasPrefix(presigned, "https://") {
				return defaultFetch(ctx, client, FileDescriptor{Name: f.Name, URL: presigned}, destPath)
			}
		}
		return fmt.Errorf("unexpected text/plain body for %s", f.URL)
	}

	if loc := resp.Header().Get("Location"); loc != "" && resp.StatusCode() == http.StatusOK {
		return defaultFetch(ctx, client, FileDescriptor{Name: f.Name, URL: loc}, destPath)
	}

	tmpPath := destPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	buf := make([]byte, 1024*1024)
	if _, err := io.CopyBuffer(out, body, buf); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, destPath)
}
