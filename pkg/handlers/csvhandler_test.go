package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btraven00/geoextent/internal/geoerrors"
)

func writeTempCSV(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write temp csv: %v", err)
	}
	return path
}

func TestCSVBoundingBoxSingleCRSValue(t *testing.T) {
	path := writeTempCSV(t, "lon,lat,crs\n10,20,4326\n11,21,4326\n")

	h := newCSVHandler(defaultOptions())
	bbox, crs, err := h.BoundingBox(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bbox == nil {
		t.Fatal("expected a bbox")
	}
	if crs != "4326" {
		t.Errorf("expected crs 4326, got %q", crs)
	}
}

func TestCSVBoundingBoxAmbiguousCRSFailsWithExtractionKind(t *testing.T) {
	path := writeTempCSV(t, "lon,lat,crs\n10,20,4326\n11,21,3857\n")

	h := newCSVHandler(defaultOptions())
	_, _, err := h.BoundingBox(path)
	if err == nil {
		t.Fatal("expected an error for an ambiguous CRS column")
	}

	var gerr *geoerrors.Error
	if !asGeoError(err, &gerr) {
		t.Fatalf("expected a *geoerrors.Error, got %T: %v", err, err)
	}
	if gerr.Kind != geoerrors.KindExtraction {
		t.Errorf("expected KindExtraction, got %s", gerr.Kind)
	}
}

func asGeoError(err error, target **geoerrors.Error) bool {
	if e, ok := err.(*geoerrors.Error); ok {
		*target = e
		return true
	}
	return false
}
