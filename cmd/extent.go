// Package cmd's extent.go is the single command geoextent actually
// runs: parse the positional argument as a local path or a remote
// identifier, dispatch to the matching pkg/geoextent entry point, and
// print the result per spec.md §6's stdout/stderr contract.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/btraven00/geoextent/internal/config"
	"github.com/btraven00/geoextent/pkg/geoextent"
)

var extentFlags struct {
	boundingBox bool
	timeBox     bool
	convexHull  bool

	downloadData          bool
	metadataFirst         bool
	follow                bool
	maxDownloadSize       string
	maxDownloadMethod     string
	maxDownloadMethodSeed int64
	downloadSkipNogeo     bool
	maxDownloadWorkers    int

	format  string
	output  string
	details bool
	legacy  bool

	noSubdirs   bool
	timeout     int
	assumeWGS84 bool
}

// registerExtentFlags binds the flags spec.md §6 groups under
// "extraction selection", "remote control", "output", and "processing"
// onto rootCmd. Defaults come from config.Default() rather than cfg,
// since cobra registers flags in init(), before initConfig has loaded
// any file or environment overlay; cfg overlays (e.g. --throttle) are
// read directly in runExtent instead.
func registerExtentFlags(cmd *cobra.Command) {
	d := config.Default()

	cmd.Flags().BoolVarP(&extentFlags.boundingBox, "bounding-box", "b", d.BoundingBox, "extract the geospatial bounding box")
	cmd.Flags().BoolVarP(&extentFlags.timeBox, "time-box", "t", d.TimeBox, "extract the temporal extent")
	cmd.Flags().BoolVar(&extentFlags.convexHull, "convex-hull", d.ConvexHull, "also compute the convex hull of vector geometries")

	cmd.Flags().BoolVar(&extentFlags.downloadData, "download-data", d.DownloadData, "allow downloading remote files when metadata alone is insufficient")
	cmd.Flags().BoolVar(&extentFlags.metadataFirst, "metadata-first", d.MetadataFirst, "try the provider's own metadata before downloading anything")
	cmd.Flags().BoolVar(&extentFlags.follow, "follow", d.Follow, "follow a provider's reference to another repository's record")
	cmd.Flags().StringVar(&extentFlags.maxDownloadSize, "max-download-size", "", "cap total download size, e.g. 200MB")
	cmd.Flags().StringVar(&extentFlags.maxDownloadMethod, "max-download-method", d.MaxDownloadMethod, "file selection strategy under the size cap: ordered|smallest|random")
	cmd.Flags().Int64Var(&extentFlags.maxDownloadMethodSeed, "max-download-method-seed", d.MaxDownloadMethodSeed, "seed for --max-download-method random")
	cmd.Flags().BoolVar(&extentFlags.downloadSkipNogeo, "download-skip-nogeo", d.DownloadSkipNogeo, "skip files whose extension never carries geospatial data")
	cmd.Flags().IntVar(&extentFlags.maxDownloadWorkers, "max-download-workers", d.MaxDownloadWorkers, "bounded worker pool size for parallel downloads")

	cmd.Flags().StringVar(&extentFlags.format, "format", d.Format, "output geometry format (accepted but not applied: the result is always written as indented JSON)")
	cmd.Flags().StringVarP(&extentFlags.output, "output", "o", d.Output, "write output to this path instead of stdout")
	cmd.Flags().BoolVar(&extentFlags.details, "details", d.Details, "include the per-file detail map in the result")
	cmd.Flags().BoolVar(&extentFlags.legacy, "legacy", d.Legacy, "emit bbox in legacy [minLon, minLat, maxLon, maxLat] order")

	cmd.Flags().BoolVar(&extentFlags.noSubdirs, "no-subdirs", !d.Recursive, "do not recurse into subdirectories")
	cmd.Flags().IntVar(&extentFlags.timeout, "timeout", 0, "wall-clock deadline in seconds for a directory walk or remote extraction (0 = no deadline)")
	cmd.Flags().BoolVar(&extentFlags.assumeWGS84, "assume-wgs84", d.AssumeWGS84, "assume WGS84 coordinates (accepted but not applied: extraction does not pass it to the format handlers)")
}

func runExtent(cmd *cobra.Command, args []string) error {
	target := args[0]

	if !extentFlags.boundingBox && !extentFlags.timeBox {
		return errors.New("--bounding-box and --time-box cannot both be disabled")
	}

	timeoutSeconds := extentFlags.timeout
	if !cmd.Flags().Changed("timeout") && cfg.Timeout != nil {
		timeoutSeconds = *cfg.Timeout
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if timeoutSeconds > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
	}

	size, sizeErr := parseByteSize(extentFlags.maxDownloadSize)
	if sizeErr != nil {
		return fmt.Errorf("--max-download-size: %w", sizeErr)
	}

	info, statErr := os.Stat(target)

	var dirTimeout *time.Duration
	if timeoutSeconds > 0 {
		d := time.Duration(timeoutSeconds) * time.Second
		dirTimeout = &d
	}

	var (
		result interface{}
		err    error
	)

	switch {
	case statErr == nil && info.IsDir():
		result, err = geoextent.FromDirectory(ctx, target, geoextent.DirectoryOptions{
			BBox: extentFlags.boundingBox, TBox: extentFlags.timeBox, ConvexHull: extentFlags.convexHull,
			Details: extentFlags.details, Recursive: !extentFlags.noSubdirs, Legacy: extentFlags.legacy,
			NumSample: 1000, Timeout: dirTimeout,
		})
	case statErr == nil:
		result, err = geoextent.FromFile(target, geoextent.FileOptions{
			BBox: extentFlags.boundingBox, TBox: extentFlags.timeBox, ConvexHull: extentFlags.convexHull,
			Legacy: extentFlags.legacy, NumSample: 1000,
		})
	default:
		result, err = geoextent.FromRemote(ctx, target, geoextent.RemoteOptions{
			BBox: extentFlags.boundingBox, TBox: extentFlags.timeBox, ConvexHull: extentFlags.convexHull,
			Details: extentFlags.details, Throttle: cfg.Throttle, DownloadData: extentFlags.downloadData,
			MetadataFirst: extentFlags.metadataFirst, Follow: extentFlags.follow,
			MaxDownloadSize: size, MaxDownloadMethod: extentFlags.maxDownloadMethod,
			MaxDownloadMethodSeed: extentFlags.maxDownloadMethodSeed, DownloadSkipNoGeo: extentFlags.downloadSkipNogeo,
			MaxDownloadWorkers: extentFlags.maxDownloadWorkers, Legacy: extentFlags.legacy, NumSample: 1000,
			Timeout: dirTimeout,
		})
	}

	if err != nil {
		return err
	}
	if resultIsNil(result) {
		fmt.Fprintln(os.Stderr, "geoextent: no geospatial or temporal extent found")
		return writeOutput(nil)
	}

	return writeOutput(result)
}

// resultIsNil guards against the classic typed-nil-in-interface trap:
// FromFile returns a nil *Extent (not an error) when nothing matched,
// and storing that into the `result interface{}` above produces a
// non-nil interface wrapping a nil pointer, which `result == nil` would
// miss.
func resultIsNil(result interface{}) bool {
	switch v := result.(type) {
	case nil:
		return true
	case *geoextent.Extent:
		return v == nil
	case *geoextent.Result:
		return v == nil
	default:
		return false
	}
}

func writeOutput(result interface{}) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if extentFlags.output == "" || extentFlags.output == "-" {
		fmt.Println(string(encoded))
		return nil
	}

	if err := os.WriteFile(extentFlags.output, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", extentFlags.output, err)
	}
	return nil
}

// parseByteSize reads spec.md §6's "<N>{KB|MB|GB}" --max-download-size
// syntax. An empty string means "no cap" (0).
func parseByteSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	unit := int64(1)
	numPart := s
	for _, suffix := range []struct {
		name string
		mult int64
	}{
		{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
	} {
		if len(s) > len(suffix.name) && s[len(s)-len(suffix.name):] == suffix.name {
			unit = suffix.mult
			numPart = s[:len(s)-len(suffix.name)]
			break
		}
	}

	var n int64
	if _, err := fmt.Sscanf(numPart, "%d", &n); err != nil {
		return 0, errors.New("expected a number followed by KB, MB, or GB")
	}
	return n * unit, nil
}
