package geoextent

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mholt/archiver/v3"

	"github.com/btraven00/geoextent/internal/geoerrors"
	"github.com/btraven00/geoextent/internal/logging"
	"github.com/btraven00/geoextent/pkg/aggregator"
	"github.com/btraven00/geoextent/pkg/handlers"
	"github.com/btraven00/geoextent/pkg/providers"
)

// FileOptions mirrors spec.md §6's from_file keyword arguments.
type FileOptions struct {
	BBox       bool
	TBox       bool
	ConvexHull bool
	NumSample  int
	Legacy     bool
}

func DefaultFileOptions() FileOptions {
	return FileOptions{BBox: true, TBox: true, NumSample: 1000}
}

// FromFile is C1 run on a single local file: detect a handler, extract
// bbox/tbox/hull, return nil (not an error) if nothing supports the
// file or nothing was extracted (spec.md §6: "no result is distinct
// from an error").
func FromFile(path string, opts FileOptions) (*Extent, error) {
	hs := handlers.Ordered()
	h := handlers.Detect(path, hs)
	if h == nil {
		logging.Debug().Str("file", path).Msg("from_file: no handler supports this file")
		return nil, nil
	}

	extent := &Extent{Legacy: opts.Legacy}
	got := false

	if opts.BBox {
		b, crs, err := h.BoundingBox(path)
		if err != nil {
			logging.Debug().Str("file", path).Err(err).Msg("from_file: bbox extraction failed")
		} else if b != nil {
			extent.BBox = &BBox{MinLat: b.MinLat, MinLon: b.MinLon, MaxLat: b.MaxLat, MaxLon: b.MaxLon}
			extent.CRS = crs
			got = true
		}
	}

	if opts.TBox {
		t, err := h.TemporalExtent(path, opts.NumSample)
		if err != nil {
			logging.Debug().Str("file", path).Err(err).Msg("from_file: tbox extraction failed")
		} else if t != nil {
			extent.TBox = &TBox{Start: t.Start, End: t.End}
			got = true
		}
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
		return nil, nil
	}
	return extent, nil
}

// DirectoryOptions mirrors spec.md §6's from_directory keyword
// arguments.
type DirectoryOptions struct {
	BBox       bool
	TBox       bool
	ConvexHull bool
	Details    bool
	Timeout    *time.Duration
	Recursive  bool
	Legacy     bool
	NumSample  int
}

func DefaultDirectoryOptions() DirectoryOptions {
	return DirectoryOptions{BBox: true, TBox: true, Recursive: true, NumSample: 1000}
}

// FromDirectory is C2: walk path (recursing into subdirectories and
// archives per aggregator.Walk), merge per-file extents.
func FromDirectory(ctx context.Context, path string, opts DirectoryOptions) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindConfig, "path does not exist", err).WithPath(path)
	}

	isArchive := !info.IsDir() && archiveExtension(path)

	walkPath := path
	if isArchive {
		scratch, cerr := os.MkdirTemp("", "geoextent-archive-*")
		if cerr != nil {
			return nil, geoerrors.Wrap(geoerrors.KindExtraction, "could not create scratch directory", cerr)
		}
		defer os.RemoveAll(scratch)

		if uerr := unarchiveInto(path, scratch); uerr != nil {
			return nil, geoerrors.Wrap(geoerrors.KindExtraction, "could not extract archive", uerr).WithPath(path)
		}
		walkPath = scratch
	}

	result, err := aggregator.Walk(ctx, walkPath, isArchive, aggregator.Options{
		BBox: opts.BBox, TBox: opts.TBox, ConvexHull: opts.ConvexHull,
		Details: opts.Details, Recursive: opts.Recursive, Timeout: opts.Timeout,
		NumSample: opts.NumSample,
	})
	if err != nil {
		return nil, err
	}

	if isArchive {
		result.Format = "archive"
	}
	result.Legacy = opts.Legacy
	return result, nil
}

// RemoteOptions mirrors spec.md §6's from_remote keyword arguments.
type RemoteOptions struct {
	BBox                  bool
	TBox                  bool
	ConvexHull            bool
	Details               bool
	Throttle              bool
	Timeout               *time.Duration
	DownloadData          bool
	MetadataFirst         bool
	Follow                bool
	MaxDownloadSize       int64
	MaxDownloadMethod     string
	MaxDownloadMethodSeed int64
	DownloadSkipNoGeo     bool
	MaxDownloadWorkers    int
	Legacy                bool
	NumSample             int
}

func DefaultRemoteOptions() RemoteOptions {
	return RemoteOptions{
		BBox: true, TBox: true, DownloadData: true, MetadataFirst: true,
		Follow: true, MaxDownloadMethod: "ordered", MaxDownloadWorkers: 4, NumSample: 1000,
	}
}

func (o RemoteOptions) toProviderOptions() providers.DownloadOptions {
	return providers.DownloadOptions{
		DownloadData:      o.DownloadData,
		MaxDownloadSize:   o.MaxDownloadSize,
		MaxDownloadMethod: o.MaxDownloadMethod,
		MaxDownloadSeed:   o.MaxDownloadMethodSeed,
		SkipNoGeo:         o.DownloadSkipNoGeo,
		MaxWorkers:        o.MaxDownloadWorkers,
		Follow:            o.Follow,
		Throttle:          o.Throttle,
	}
}

// FromRemote is C5: dispatch identifier to a provider, prefer direct
// metadata extraction when available and requested, otherwise download
// into a scoped temp directory (deleted on every exit path, spec.md P8)
// and hand it to FromDirectory. Followable providers may redirect to
// another provider's record; a visited-reference set (stronger than
// the bare self-class guard spec.md requires — see DESIGN.md) prevents
// A -> B -> A cycles.
func FromRemote(ctx context.Context, identifier string, opts RemoteOptions) (*Result, error) {
	registry := providers.NewRegistry()
	return fromRemoteOne(ctx, registry, identifier, opts, map[string]bool{})
}

func fromRemoteOne(ctx context.Context, registry *providers.Registry, identifier string, opts RemoteOptions, visited map[string]bool) (*Result, error) {
	if visited[identifier] {
		return nil, geoerrors.New(geoerrors.KindUnsupportedIdentifier, "cyclic follow detected").WithPath(identifier)
	}
	visited[identifier] = true

	provider, err := registry.Dispatch(ctx, identifier)
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindUnsupportedIdentifier, "no provider recognizes this identifier", err).WithPath(identifier)
	}

	info := provider.Info()

	if opts.MetadataFirst && provider.SupportsMetadataExtraction() {
		ext, merr := provider.Metadata(ctx)
		if merr != nil {
			logging.Warn().Str("provider", info.Name).Err(merr).Msg("from_remote: direct metadata extraction failed, falling back to download")
		} else if ext != nil {
			res := remoteResultFromExtent(ext, "metadata")
			res.Legacy = opts.Legacy
			return res, nil
		}
	}

	scratch, direrr := os.MkdirTemp("", "geoextent-remote-"+uuid.NewString()[:8]+"-*")
	if direrr != nil {
		return nil, geoerrors.Wrap(geoerrors.KindDownload, "could not create scoped temp directory", direrr)
	}
	defer os.RemoveAll(scratch)

	outcome, derr := provider.Download(ctx, scratch, opts.toProviderOptions())
	if derr != nil {
		return nil, geoerrors.Wrap(geoerrors.KindDownload, "provider download failed", derr).WithProvider(info.Name)
	}

	if opts.Follow {
		if followable, ok := provider.(providers.Followable); ok {
			refs := followable.FollowReferences(ctx)
			for _, ref := range refs {
				if visited[ref] {
					continue
				}

				followed, ferr := registry.DispatchExcluding(ctx, ref, info.Name)
				if ferr != nil {
					logging.Info().Str("provider", info.Name).Str("reference", ref).Msg("from_remote: external reference not matched by any provider, skipping")
					continue
				}

				res, rerr := fromRemoteOne(ctx, registry, ref, opts, visited)
				if rerr != nil {
					logging.Warn().Str("provider", info.Name).Str("reference", ref).Err(rerr).Msg("from_remote: follow failed")
					continue
				}
				if res.BBox == nil && res.TBox == nil {
					logging.Info().Str("provider", info.Name).Str("reference", ref).Msg("from_remote: followed reference yielded no extent, skipping")
					continue
				}

				res.Followed = &Followed{From: info.Name, To: followed.Info().Name, Via: ref}
				return res, nil
			}
		}
	}

	if outcome.FilesWritten == 0 {
		return &Result{Format: "remote", ExtractionMethod: "download"}, nil
	}

	dirResult, werr := FromDirectory(ctx, scratch, DirectoryOptions{
		BBox: opts.BBox, TBox: opts.TBox, ConvexHull: opts.ConvexHull,
		Details: opts.Details, Recursive: true, Timeout: opts.Timeout, NumSample: opts.NumSample,
		Legacy: opts.Legacy,
	})
	if werr != nil {
		return nil, werr
	}

	dirResult.Format = "remote"
	dirResult.ExtractionMethod = "download"
	return dirResult, nil
}

func remoteResultFromExtent(ext *providers.ExtentResult, method string) *Result {
	result := &Result{Format: "remote", ExtractionMethod: method}

	if ext.HasBBox {
		b := BBox{MinLat: ext.MinLat, MinLon: ext.MinLon, MaxLat: ext.MaxLat, MaxLon: ext.MaxLon}
		result.BBox = &b
		result.CRS = ext.CRS
		if result.CRS == "" {
			result.CRS = "4326"
		}
	}
	if ext.HasTBox {
		result.TBox = &TBox{Start: ext.TBoxStart, End: ext.TBoxEnd}
	}

	return result
}

// FromRemoteBatch is spec.md §4.5's bulk mode: per-identifier failures
// never abort the batch.
func FromRemoteBatch(ctx context.Context, identifiers []string, opts RemoteOptions) *Result {
	result := &Result{
		Format:            "remote",
		PerIdentifier:     map[string]*Result{},
		PerIdentifierErrs: map[string]string{},
		ExtractionMeta:    &ExtractionMetadata{TotalResources: len(identifiers)},
	}

	for _, id := range identifiers {
		res, err := FromRemote(ctx, id, opts)
		if err != nil {
			result.PerIdentifierErrs[id] = err.Error()
			result.ExtractionMeta.Failed++
			continue
		}
		result.PerIdentifier[id] = res
		result.ExtractionMeta.Successful++
	}

	return result
}

var archiveExts = map[string]bool{
	".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".rar": true, ".7z": true,
}

func archiveExtension(path string) bool {
	return archiveExts[lowerExt(filepath.Ext(path))]
}

func lowerExt(ext string) string {
	b := []byte(ext)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func unarchiveInto(path, dir string) error {
	return archiver.Unarchive(path, dir)
}
