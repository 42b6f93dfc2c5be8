// Package witness provides the filesystem helpers provider adapters and
// the download engine share: filename sanitization, checksums, a
// provenance sidecar file, and collision resolution. Adapted from the
// teacher's pkg/downloaders/common (filesystem.go, json.go) — same
// responsibilities, generalized away from hapiq's single "hapiq.json"
// witness format toward a geoextent-flavored one and toward index-not-
// overwrite collision handling, which spec.md §3 requires and the
// teacher's CheckAndPrepare/HandleDirectoryConflicts only offered as a
// user-interactive choice.
package witness

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// File records provenance for a provider download, written alongside
// the fetched files so a later `--details` run (or a human) can see
// where the data came from.
type File struct {
	Source       string    `json:"source"`
	Identifier   string    `json:"identifier"`
	RecordID     string    `json:"record_id,omitempty"`
	DownloadTime time.Time `json:"download_time"`
	Files        []string  `json:"files"`
	Followed     *Follow   `json:"followed,omitempty"`
}

// Follow mirrors spec.md §4.4's `followed: {from, to, via}` shape.
type Follow struct {
	From string `json:"from"`
	To   string `json:"to"`
	Via  string `json:"via"`
}

const fileName = "geoextent-witness.json"

func Write(targetDir string, w *File) error {
	path := filepath.Join(targetDir, fileName)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating witness file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(w); err != nil {
		return fmt.Errorf("encoding witness file: %w", err)
	}

	return nil
}

func Read(targetDir string) (*File, error) {
	path := filepath.Join(targetDir, fileName)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening witness file: %w", err)
	}
	defer f.Close()

	var w File

	dec := json.NewDecoder(f)
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decoding witness file: %w", err)
	}

	return &w, nil
}

var invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeFilename strips path separators and control characters so a
// provider-supplied name can never escape the target directory.
func SanitizeFilename(name string) string {
	sanitized := invalidChars.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, ". ")

	if sanitized == "" {
		sanitized = "unnamed"
	}
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}

	return sanitized
}

// ResolveCollision implements spec.md §3's invariant that concurrent
// downloads to the same target directory use distinct filenames,
// resolved "typically by indexing, not overwriting". Given a desired
// path, it returns the first available "name (n).ext" variant.
func ResolveCollision(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB", "TB", "PB"}

	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), units[exp])
}
